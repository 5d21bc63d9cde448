package server

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

func startServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Password = testPassword
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	_, err = srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	})
	return srv
}

// browserClient follows redirects and keeps cookies, like a browser would.
func browserClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

// noFollow returns a copy of c that stops at the first redirect.
func noFollow(c *http.Client) *http.Client {
	cp := *c
	cp.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &cp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// authorize walks the app's entry control up to the identity provider and
// returns the authorization request it was redirected with.
func authorize(t *testing.T, srv *Server, c *http.Client) *url.URL {
	t.Helper()
	resp, err := noFollow(c).Get(srv.URL() + "/oauth/login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc
}

func loginForm(loc *url.URL, username, password string) url.Values {
	q := loc.Query()
	return url.Values{
		"client_id":    {q.Get("client_id")},
		"redirect_uri": {q.Get("redirect_uri")},
		"state":        {q.Get("state")},
		"username":     {username},
		"password":     {password},
		"action":       {"default"},
	}
}

func TestServerStartStop(t *testing.T) {
	srv, err := NewServer(DefaultConfig())
	require.NoError(t, err)

	addr, err := srv.Start()
	require.NoError(t, err)
	assert.NotEqual(t, ":0", addr)
	assert.Equal(t, addr, srv.Addr())
	assert.True(t, strings.HasPrefix(srv.URL(), "http://localhost:"))
	assert.True(t, strings.HasPrefix(srv.IdPURL(), "http://127.0.0.1:"))

	resp, err := http.Get(srv.URL() + "/")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Just click on")
	assert.Contains(t, body, `class="enter"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Empty(t, srv.Addr())

	_, err = http.Get(srv.URL() + "/")
	assert.Error(t, err, "expected connection error after shutdown")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":0", cfg.Addr)
	assert.Equal(t, ":0", cfg.IdPAddr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "cypress@pessu.net", cfg.AnonymousName)
	assert.False(t, cfg.RequireLogin)
}

func TestServerDoubleStart(t *testing.T) {
	srv := startServer(t, nil)

	addr1 := srv.Addr()
	addr2, err := srv.Start()
	require.NoError(t, err)
	assert.Equal(t, addr1, addr2)
}

func TestNewServer_LoginNeedsAccount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireLogin = true
	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestUnknownPath(t *testing.T) {
	srv := startServer(t, nil)

	resp, err := http.Get(srv.URL() + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnterWithoutLoginWall(t *testing.T) {
	srv := startServer(t, nil)
	c := browserClient(t)

	resp, err := c.Get(srv.URL() + "/oauth/login")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, srv.URL()+"/profile", resp.Request.URL.String())
	assert.Contains(t, body, `<span id="name">cypress@pessu.net</span>`)
	assert.Contains(t, body, `class="enter"`)
}

func TestProfileRequiresSession(t *testing.T) {
	srv := startServer(t, nil)

	resp, err := noFollow(browserClient(t)).Get(srv.URL() + "/profile")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLoginFlow(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.RequireLogin = true })
	c := browserClient(t)

	loc := authorize(t, srv, c)
	assert.True(t, strings.HasPrefix(loc.String(), srv.IdPURL()+"/authorize?"))
	assert.Contains(t, loc.String(), "state=")
	assert.Equal(t, srv.URL()+"/oauth/callback", loc.Query().Get("redirect_uri"))

	resp, err := c.Get(loc.String())
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="username"`)
	assert.Contains(t, body, `id="password"`)
	assert.Contains(t, body, `type="submit" name="action" value="default"`)

	resp, err = c.PostForm(srv.IdPURL()+"/login", loginForm(loc, "cypress@pessu.net", testPassword))
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, srv.URL()+"/", resp.Request.URL.String(), "login must land back on the app")

	resp, err = c.Get(srv.URL() + "/oauth/login")
	require.NoError(t, err)
	body = readBody(t, resp)
	assert.Equal(t, srv.URL()+"/profile", resp.Request.URL.String())
	assert.Contains(t, body, `<span id="name">cypress@pessu.net</span>`)
}

func TestLoginFlow_WrongPassword(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.RequireLogin = true })
	c := browserClient(t)
	loc := authorize(t, srv, c)

	resp, err := c.PostForm(srv.IdPURL()+"/login", loginForm(loc, "cypress@pessu.net", "nope"))
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Wrong email or password.")
	assert.True(t, strings.HasPrefix(resp.Request.URL.String(), srv.IdPURL()))
}

func TestLoginFlow_CodeIsSingleUse(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.RequireLogin = true })
	c := browserClient(t)
	loc := authorize(t, srv, c)

	resp, err := noFollow(c).PostForm(srv.IdPURL()+"/login", loginForm(loc, "cypress@pessu.net", testPassword))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	callback, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	code := callback.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, loc.Query().Get("state"), callback.Query().Get("state"))

	resp, err = c.Get(callback.String())
	require.NoError(t, err)
	readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Replaying the callback fails on the consumed state.
	resp, err = c.Get(callback.String())
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Replaying the code at the token endpoint fails too.
	resp, err = http.PostForm(srv.IdPURL()+"/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {srv.URL() + "/oauth/callback"},
		"client_id":     {srv.cfg.ClientID},
		"client_secret": {srv.oauth.ClientSecret},
	})
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "invalid_grant")
}

func TestAuthorize_RejectsUnknownClient(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.RequireLogin = true })

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {"someone-else"},
		"redirect_uri":  {srv.URL() + "/oauth/callback"},
		"state":         {"x"},
	}
	resp, err := http.Get(srv.IdPURL() + "/authorize?" + q.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserInfo_RequiresToken(t *testing.T) {
	srv := startServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.IdPURL()+"/userinfo", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer bogus")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
