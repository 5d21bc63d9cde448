package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// grant is an issued, not yet exchanged authorization code.
type grant struct {
	identity    string
	clientID    string
	redirectURI string
	expires     time.Time
}

const codeTTL = time.Minute

func (s *Server) idpRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", s.handleAuthorize)
	mux.HandleFunc("POST /login", s.handleIdPLogin)
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("GET /userinfo", s.handleUserInfo)
	return mux
}

// authRequest is the part of an authorization request carried through the
// login form.
type authRequest struct {
	ClientID    string
	RedirectURI string
	State       string
	Error       string
}

func (s *Server) validClient(clientID, redirectURI string) bool {
	return clientID == s.cfg.ClientID && redirectURI == s.oauth.RedirectURL
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := authRequest{
		ClientID:    q.Get("client_id"),
		RedirectURI: q.Get("redirect_uri"),
		State:       q.Get("state"),
	}
	if q.Get("response_type") != "code" || !s.validClient(req.ClientID, req.RedirectURI) {
		http.Error(w, "Invalid authorization request", http.StatusBadRequest)
		return
	}
	render(w, http.StatusOK, loginPage, req)
}

func (s *Server) handleIdPLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	req := authRequest{
		ClientID:    r.PostForm.Get("client_id"),
		RedirectURI: r.PostForm.Get("redirect_uri"),
		State:       r.PostForm.Get("state"),
	}
	if !s.validClient(req.ClientID, req.RedirectURI) {
		http.Error(w, "Invalid authorization request", http.StatusBadRequest)
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if !s.checkPassword(username, password) {
		s.logger.Info("login rejected", "username", username)
		req.Error = "Wrong email or password."
		render(w, http.StatusUnauthorized, loginPage, req)
		return
	}

	code := s.codes.add(grant{
		identity:    username,
		clientID:    req.ClientID,
		redirectURI: req.RedirectURI,
		expires:     time.Now().Add(codeTTL),
	})

	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		http.Error(w, "Invalid redirect", http.StatusBadRequest)
		return
	}
	v := u.Query()
	v.Set("code", code)
	v.Set("state", req.State)
	u.RawQuery = v.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (s *Server) checkPassword(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1
	return userOK && passOK
}

type tokenResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, tokenResponse{Error: "invalid_request"})
		return
	}
	f := r.PostForm
	if f.Get("grant_type") != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, tokenResponse{Error: "unsupported_grant_type"})
		return
	}
	if f.Get("client_id") != s.cfg.ClientID || f.Get("client_secret") != s.oauth.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, tokenResponse{Error: "invalid_client"})
		return
	}

	g, ok := s.codes.take(f.Get("code"))
	if !ok || time.Now().After(g.expires) || g.clientID != f.Get("client_id") || g.redirectURI != f.Get("redirect_uri") {
		writeJSON(w, http.StatusBadRequest, tokenResponse{Error: "invalid_grant"})
		return
	}

	token := s.tokens.add(g.identity)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Hour / time.Second),
	})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "Missing bearer token", http.StatusUnauthorized)
		return
	}
	identity, ok := s.tokens.get(token)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, userInfo{Sub: "auth0|" + identity, Email: identity, Name: identity})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
