package smoke

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTargetURL       = "http://localhost:8080"
	DefaultEntrySelector   = "a.enter"
	DefaultUsernameField   = "#username"
	DefaultPasswordField   = "#password"
	DefaultSubmitSelector  = "button[type=submit][value=default]"
	DefaultNameSelector    = "#name"
	DefaultAuthMarker      = "state="
	DefaultReturnMarker    = "8080"
	DefaultExpectedName    = "cypress@pessu.net"
	DefaultRedirectTimeout = 35 * time.Second
	DefaultAssertTimeout   = 4 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
)

// Config describes one run of the scenario.
type Config struct {
	TargetURL string

	EntrySelector    string // optional entry control, e.g. "a.enter"
	UsernameSelector string // identity provider username input
	PasswordSelector string // identity provider password input
	SubmitSelector   string // identity provider submit control
	NameSelector     string // element holding the signed-in identity

	AuthMarker   string // URL substring that signals an authorization redirect
	ReturnMarker string // URL substring that signals the return to the app
	ExpectedName string

	Username string
	Password string

	RedirectTimeout time.Duration // bound on each URL poll
	AssertTimeout   time.Duration // retry window for value assertions
	PollInterval    time.Duration
}

// DefaultConfig returns the scenario constants for the local application.
// Credentials are left empty; callers fill them from the environment.
func DefaultConfig() Config {
	return Config{
		TargetURL:        DefaultTargetURL,
		EntrySelector:    DefaultEntrySelector,
		UsernameSelector: DefaultUsernameField,
		PasswordSelector: DefaultPasswordField,
		SubmitSelector:   DefaultSubmitSelector,
		NameSelector:     DefaultNameSelector,
		AuthMarker:       DefaultAuthMarker,
		ReturnMarker:     DefaultReturnMarker,
		ExpectedName:     DefaultExpectedName,
		RedirectTimeout:  DefaultRedirectTimeout,
		AssertTimeout:    DefaultAssertTimeout,
		PollInterval:     DefaultPollInterval,
	}
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var errs []error

	required := []struct{ name, value string }{
		{"target URL", c.TargetURL},
		{"entry selector", c.EntrySelector},
		{"username selector", c.UsernameSelector},
		{"password selector", c.PasswordSelector},
		{"submit selector", c.SubmitSelector},
		{"name selector", c.NameSelector},
		{"auth marker", c.AuthMarker},
		{"return marker", c.ReturnMarker},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is empty", r.name))
		}
	}

	if c.RedirectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("redirect timeout must be positive, got %v", c.RedirectTimeout))
	}
	if c.AssertTimeout <= 0 {
		errs = append(errs, fmt.Errorf("assert timeout must be positive, got %v", c.AssertTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %v", c.PollInterval))
	} else if c.PollInterval > c.RedirectTimeout || c.PollInterval > c.AssertTimeout {
		errs = append(errs, fmt.Errorf("poll interval %v exceeds a timeout", c.PollInterval))
	}

	return errors.Join(errs...)
}
