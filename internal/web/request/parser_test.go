package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

type contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func TestParser_ParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		target      interface{}
		wantErr     bool
		errContains string
	}{
		{
			name:    "valid JSON object",
			body:    `{"name":"John","email":"john@example.com"}`,
			target:  &contact{},
			wantErr: false,
		},
		{
			name:        "empty body",
			body:        "",
			target:      &contact{},
			wantErr:     true,
			errContains: "empty",
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			target:      &contact{},
			wantErr:     true,
			errContains: "invalid JSON",
		},
		{
			name:        "unknown field with strict parsing",
			body:        `{"name":"John","admin":true}`,
			target:      &contact{},
			wantErr:     true,
			errContains: "unknown field",
		},
		{
			name:        "type mismatch",
			body:        `{"name":42}`,
			target:      &contact{},
			wantErr:     true,
			errContains: "invalid JSON format",
		},
		{
			name:        "multiple JSON objects",
			body:        `{"name":"a"}{"name":"b"}`,
			target:      &contact{},
			wantErr:     true,
			errContains: "multiple JSON objects",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			err := parser.ParseJSON(w, req, tt.target)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseJSON() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ParseJSON() error = %v, should contain %v", err, tt.errContains)
			}
		})
	}
}

func TestParser_ParseForm_KeepsStrings(t *testing.T) {
	form := url.Values{
		"name":    {"Ada"},
		"email":   {"ada@example.com"},
		"phone":   {"5551234"},
		"message": {"true"},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var c contact
	if err := NewParser().Parse(httptest.NewRecorder(), req, &c); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if c.Phone != "5551234" {
		t.Errorf("phone = %q, want 5551234", c.Phone)
	}
	if c.Message != "true" {
		t.Errorf("message = %q, want true", c.Message)
	}
	if c.Name != "Ada" || c.Email != "ada@example.com" {
		t.Errorf("unexpected contact %+v", c)
	}
}

func TestParser_ParseForm_IgnoresQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/?name=Mallory", strings.NewReader("email=a%40b.test"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var m map[string]string
	if err := NewParser().ParseForm(httptest.NewRecorder(), req, &m); err != nil {
		t.Fatalf("ParseForm() error = %v", err)
	}
	if _, ok := m["name"]; ok {
		t.Errorf("query parameter leaked into form: %v", m)
	}
	if m["email"] != "a@b.test" {
		t.Errorf("email = %q", m["email"])
	}
}

func TestParser_Parse_ContentTypeDetection(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     error
	}{
		{"json", "application/json", `{"name":"a"}`, nil},
		{"json with charset", "application/json; charset=utf-8", `{"name":"a"}`, nil},
		{"no content type defaults to json", "", `{"name":"a"}`, nil},
		{"form", "application/x-www-form-urlencoded", "name=a", nil},
		{"multipart rejected", "multipart/form-data; boundary=x", "--x--", ErrUnsupportedMediaType},
		{"xml rejected", "application/xml", "<a/>", ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			var c contact
			err := NewParser().Parse(httptest.NewRecorder(), req, &c)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && c.Name != "a" {
				t.Errorf("name = %q, want a", c.Name)
			}
		})
	}
}

func TestParser_MaxBodySize(t *testing.T) {
	parser := NewParserWithMaxSize(16)
	body := `{"name":"` + strings.Repeat("x", 64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	err := parser.ParseJSON(httptest.NewRecorder(), req, &contact{})
	if err == nil || !strings.Contains(err.Error(), "exceeds 16 bytes") {
		t.Errorf("ParseJSON() error = %v, want size error", err)
	}
}

func TestGetParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/leads/123", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "123")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	if got := GetParam(req, "id"); got != "123" {
		t.Errorf("GetParam() = %v, want 123", got)
	}
}

func TestGetQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=new", nil)

	if got := GetQueryParam(req, "status"); got != "new" {
		t.Errorf("GetQueryParam(status) = %v, want new", got)
	}
	if got := GetQueryParam(req, "missing"); got != "" {
		t.Errorf("GetQueryParam(missing) = %v, want empty string", got)
	}
}

func TestGetQueryParamInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&offset=abc", nil)

	if got := GetQueryParamInt(req, "limit", 1); got != 5 {
		t.Errorf("GetQueryParamInt(limit) = %v, want 5", got)
	}
	if got := GetQueryParamInt(req, "offset", 0); got != 0 {
		t.Errorf("GetQueryParamInt(offset) = %v, want default 0", got)
	}
	if got := GetQueryParamInt(req, "missing", 10); got != 10 {
		t.Errorf("GetQueryParamInt(missing) = %v, want default 10", got)
	}
}

func TestParser_ParseJSON_EmptyChunkedBody(t *testing.T) {
	parser := NewParser()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}

	var target contact
	err := parser.ParseJSON(httptest.NewRecorder(), req, &target)
	if !errors.Is(err, ErrEmptyBody) {
		t.Errorf("ParseJSON() error = %v, want ErrEmptyBody", err)
	}
}
