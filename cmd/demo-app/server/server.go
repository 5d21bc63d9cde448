// Package server provides an importable demo application for the smoke test.
// It serves the application under test and, on a second listener, the
// identity provider it signs users in with. E2E tests start and stop it
// programmatically without running main().
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// Config holds server configuration options.
type Config struct {
	Addr         string        // App listen address (e.g., ":8080" or ":0" for random port)
	IdPAddr      string        // Identity provider listen address
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout

	// RequireLogin puts the app behind the identity provider. When false,
	// entering signs in AnonymousName without a redirect.
	RequireLogin  bool
	AnonymousName string

	// Username and Password are the one account the identity provider knows.
	Username string
	Password string

	ClientID string

	Logger *slog.Logger
}

// DefaultConfig returns a configuration suitable for testing.
// Uses ":0" to bind to random available ports.
func DefaultConfig() Config {
	return Config{
		Addr:          ":0",
		IdPAddr:       ":0",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		AnonymousName: "cypress@pessu.net",
		Username:      "cypress@pessu.net",
		ClientID:      "smoke-demo",
	}
}

// Server runs the demo app and its identity provider.
type Server struct {
	cfg    Config
	logger *slog.Logger

	app *http.Server
	idp *http.Server

	oauth *oauth2.Config

	sessions *store[string]   // session id -> identity
	pending  *store[struct{}] // outstanding OAuth state values
	codes    *store[grant]    // authorization code -> grant
	tokens   *store[string]   // access token -> identity

	mu      sync.Mutex
	running bool
	appURL  string
	idpURL  string
}

// NewServer creates a new server with the given configuration.
// The server is not started until Start() is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.RequireLogin && (cfg.Username == "" || cfg.Password == "") {
		return nil, errors.New("login required but no account configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultConfig().ClientID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: newStore[string](),
		pending:  newStore[struct{}](),
		codes:    newStore[grant](),
		tokens:   newStore[string](),
	}

	s.app = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.appRoutes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.idp = &http.Server{
		Addr:         cfg.IdPAddr,
		Handler:      s.idpRoutes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Start begins listening and serving HTTP requests on both listeners.
// Returns the app's actual address (useful when port is 0).
// This method is non-blocking - the servers run in goroutines.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.app.Addr, nil
	}

	appLn, err := net.Listen("tcp", s.app.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}
	idpLn, err := net.Listen("tcp", s.idp.Addr)
	if err != nil {
		appLn.Close()
		return "", fmt.Errorf("failed to listen for identity provider: %w", err)
	}

	// The identity provider lives on a different host name than the app so
	// the browser treats it as another site.
	s.appURL = publicURL("localhost", appLn.Addr())
	s.idpURL = publicURL("127.0.0.1", idpLn.Addr())
	s.oauth = &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: uuid.NewString(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.idpURL + "/authorize",
			TokenURL:  s.idpURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: s.appURL + "/oauth/callback",
		Scopes:      []string{"openid", "profile", "email"},
	}

	s.app.Addr = appLn.Addr().String()
	s.idp.Addr = idpLn.Addr().String()
	s.running = true

	s.serve(s.app, appLn, "app")
	s.serve(s.idp, idpLn, "identity provider")

	s.logger.Info("demo app started", "app", s.appURL, "idp", s.idpURL, "require_login", s.cfg.RequireLogin)
	return s.app.Addr, nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, name string) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "server", name, "error", err)
		}
	}()
}

// Shutdown gracefully shuts down both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.app.Shutdown(ctx) })
	g.Go(func() error { return s.idp.Shutdown(ctx) })
	return g.Wait()
}

// Addr returns the app's listen address.
// Returns empty string if server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ""
	}
	return s.app.Addr
}

// URL returns the app's base URL as a browser should open it, e.g.
// http://localhost:8080.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appURL
}

// IdPURL returns the identity provider's base URL.
func (s *Server) IdPURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idpURL
}

func publicURL(host string, addr net.Addr) string {
	_, port, _ := net.SplitHostPort(addr.String())
	return "http://" + net.JoinHostPort(host, port)
}

// store is a mutex-guarded map of random keys to values.
type store[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func newStore[V any]() *store[V] {
	return &store[V]{m: make(map[string]V)}
}

// add stores v under a fresh random key and returns the key.
func (st *store[V]) add(v V) string {
	key := uuid.NewString()
	st.mu.Lock()
	st.m[key] = v
	st.mu.Unlock()
	return key
}

func (st *store[V]) get(key string) (V, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.m[key]
	return v, ok
}

// take removes and returns the value under key. Single-use values
// (state, authorization codes) are read with take.
func (st *store[V]) take(key string) (V, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.m[key]
	delete(st.m, key)
	return v, ok
}

func (st *store[V]) remove(key string) {
	st.mu.Lock()
	delete(st.m, key)
	st.mu.Unlock()
}
