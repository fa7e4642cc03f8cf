package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ErrUnsupportedMediaType is returned for bodies that are neither JSON nor
// a urlencoded form
var ErrUnsupportedMediaType = errors.New("unsupported content type")

// ErrEmptyBody is returned when a request carries no body at all
var ErrEmptyBody = errors.New("request body is empty")

// Parser handles parsing of HTTP request bodies
type Parser struct {
	maxBodySize int64 // Maximum size for request bodies (in bytes)
}

// NewParser creates a new request parser with default settings
func NewParser() *Parser {
	return &Parser{
		maxBodySize: 1 << 20, // 1MB default
	}
}

// NewParserWithMaxSize creates a parser with a custom max body size
func NewParserWithMaxSize(maxBytes int64) *Parser {
	return &Parser{
		maxBodySize: maxBytes,
	}
}

// Parse parses the request body into the target based on Content-Type.
// Public forms post either JSON or application/x-www-form-urlencoded.
func (p *Parser) Parse(w http.ResponseWriter, r *http.Request, target interface{}) error {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	switch mediaType {
	case "application/json", "":
		return p.ParseJSON(w, r, target)
	case "application/x-www-form-urlencoded":
		return p.ParseForm(w, r, target)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
}

// ParseJSON parses a JSON request body
func (p *Parser) ParseJSON(w http.ResponseWriter, r *http.Request, target interface{}) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	// Limit body size to prevent DoS attacks
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields() // Strict parsing - reject unknown fields

	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, err)
		}
		if strings.Contains(err.Error(), "cannot unmarshal") {
			return fmt.Errorf("invalid JSON format: %w", err)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}

	// Check if there's additional data after the JSON object
	if decoder.More() {
		return errors.New("request body contains multiple JSON objects")
	}

	return nil
}

// ParseForm parses URL-encoded form data. Values bind as strings.
func (p *Parser) ParseForm(w http.ResponseWriter, r *http.Request, target interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form data: %w", err)
	}

	return formToStruct(r.PostForm, target)
}

// formToStruct binds url.Values to a map or a struct with json tags. Repeated
// keys keep their first value.
func formToStruct(values url.Values, target interface{}) error {
	if m, ok := target.(*map[string]string); ok {
		result := make(map[string]string, len(values))
		for key, vals := range values {
			if len(vals) > 0 {
				result[key] = vals[0]
			}
		}
		*m = result
		return nil
	}

	flat := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			flat[key] = vals[0]
		}
	}

	data, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("failed to convert form data: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse form data: %w", err)
	}
	return nil
}

// GetParam gets a chi path parameter from the request
func GetParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// GetQueryParam gets a query parameter
func GetQueryParam(r *http.Request, name string) string {
	return r.URL.Query().Get(name)
}

// GetQueryParamInt gets a query parameter as integer
func GetQueryParamInt(r *http.Request, name string, defaultValue int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}
