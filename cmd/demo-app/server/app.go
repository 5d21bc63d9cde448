package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const sessionCookie = "demo_session"

func (s *Server) appRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /oauth/login", s.handleLogin)
	mux.HandleFunc("GET /oauth/callback", s.handleCallback)
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("GET /logout", s.handleLogout)
	return mux
}

// identity returns the signed-in identity of the request's session, if any.
func (s *Server) identity(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}
	return s.sessions.get(c.Value)
}

func (s *Server) signIn(w http.ResponseWriter, name string) {
	id := s.sessions.add(name)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("signed in", "name", name)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	name, _ := s.identity(r)
	render(w, http.StatusOK, homePage, map[string]any{"Name": name})
}

// handleLogin is the entry control's target. It either goes straight to the
// profile or starts an authorization code flow at the identity provider.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(r); ok {
		http.Redirect(w, r, "/profile", http.StatusFound)
		return
	}
	if !s.cfg.RequireLogin {
		s.signIn(w, s.cfg.AnonymousName)
		http.Redirect(w, r, "/profile", http.StatusFound)
		return
	}

	state := s.pending.add(struct{}{})
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

type userInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if _, ok := s.pending.take(q.Get("state")); !ok {
		http.Error(w, "Unknown state", http.StatusBadRequest)
		return
	}
	if e := q.Get("error"); e != "" {
		http.Error(w, "Authorization failed: "+e, http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	tok, err := s.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		s.logger.Warn("code exchange failed", "error", err)
		http.Error(w, "Code exchange failed", http.StatusUnauthorized)
		return
	}

	info, err := s.fetchUserInfo(r, tok.AccessToken)
	if err != nil {
		s.logger.Warn("userinfo failed", "error", err)
		http.Error(w, "Userinfo failed", http.StatusBadGateway)
		return
	}

	s.signIn(w, info.Email)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) fetchUserInfo(r *http.Request, accessToken string) (*userInfo, error) {
	client := s.oauth.Client(r.Context(), &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	resp, err := client.Get(s.idpURL + "/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &info, nil
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	name, ok := s.identity(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	render(w, http.StatusOK, profilePage, map[string]any{"Name": name})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.remove(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}
