package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server wraps http.Server with production timeouts and optional TLS
type Server struct {
	httpServer *http.Server
	config     Config
	listener   net.Listener
}

// Config holds server configuration
type Config struct {
	// Address is the server listen address (e.g., ":8080")
	Address string `mapstructure:"address"`

	// Timeouts
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// ShutdownTimeout bounds draining requests and running shutdown hooks
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Connection limits
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`

	TLS TLSConfig `mapstructure:"tls"`
}

// TLSConfig holds TLS/SSL configuration
type TLSConfig struct {
	// CertFile is the path to the TLS certificate
	CertFile string `mapstructure:"cert_file"`

	// KeyFile is the path to the TLS private key
	KeyFile string `mapstructure:"key_file"`

	// MinVersion is the minimum TLS version (default: TLS 1.2)
	MinVersion uint16 `mapstructure:"min_version"`
}

// Enabled reports whether both certificate and key are configured
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// DefaultConfig returns a production-ready server configuration
func DefaultConfig() Config {
	return Config{
		Address:           ":8080",
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// New creates a server for handler
func New(config Config, handler http.Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if config.Address == "" {
		return nil, errors.New("server address is required")
	}
	if (config.TLS.CertFile == "") != (config.TLS.KeyFile == "") {
		return nil, errors.New("tls requires both cert_file and key_file")
	}

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	if config.TLS.Enabled() {
		httpServer.TLSConfig = buildTLSConfig(config.TLS)
	}

	return &Server{
		httpServer: httpServer,
		config:     config,
	}, nil
}

// Listen binds the listen address without serving yet. Calling it again
// keeps the existing listener.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Serve accepts connections on the bound listener until shutdown. It
// returns http.ErrServerClosed after Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	if s.config.TLS.Enabled() {
		return s.httpServer.ServeTLS(s.listener, s.config.TLS.CertFile, s.config.TLS.KeyFile)
	}
	return s.httpServer.Serve(s.listener)
}

// Start binds and serves
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.httpServer.Close()
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// buildTLSConfig builds a TLS configuration with HTTP/2 support
func buildTLSConfig(tlsConfig TLSConfig) *tls.Config {
	config := &tls.Config{
		MinVersion: tlsConfig.MinVersion,
		NextProtos: []string{"h2", "http/1.1"},
	}
	if config.MinVersion == 0 {
		config.MinVersion = tls.VersionTLS12
	}
	return config
}
