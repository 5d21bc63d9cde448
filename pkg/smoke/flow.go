package smoke

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Step names, reported in StepError and step events.
const (
	StepNavigate      = "navigate"
	StepFindEntry     = "find entry"
	StepOpenEntry     = "open entry"
	StepAwaitRedirect = "await redirect"
	StepFillUsername  = "fill username"
	StepFillPassword  = "fill password"
	StepSubmit        = "submit login"
	StepAwaitReturn   = "await return"
	StepEnter         = "enter"
	StepAssertName    = "assert name"
)

// Event names passed to hooks.
const (
	EventBeforeRun = "before:run"
	EventStep      = "step"
	EventAfterRun  = "after:run"
)

// Event describes a point in the run's lifecycle.
type Event struct {
	Name   string
	Step   string  // set for EventStep
	Result *Result // set for EventAfterRun
	Err    error   // set for EventAfterRun when the run failed
}

// Hook observes lifecycle events. Hooks run synchronously on the scenario's
// command stream and must not drive the page.
type Hook func(ctx context.Context, ev Event)

// Result summarizes a completed run.
type Result struct {
	LoginTaken bool // the authorization redirect branch ran
	FinalURL   string
	Name       string // identity text observed at the end
	Duration   time.Duration
}

// Flow runs the login-flow smoke test.
type Flow struct {
	cfg    Config
	logger *slog.Logger
	hooks  map[string][]Hook
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger used for step tracing.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFlow validates cfg and returns a Flow ready to run.
func NewFlow(cfg Config, opts ...Option) (*Flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	f := &Flow{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		hooks:  make(map[string][]Hook),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// On registers h for the named event. Hooks for one event run in the order
// they were registered. Register hooks before calling Run.
func (f *Flow) On(event string, h Hook) {
	f.hooks[event] = append(f.hooks[event], h)
}

func (f *Flow) emit(ctx context.Context, ev Event) {
	for _, h := range f.hooks[ev.Name] {
		h(ctx, ev)
	}
}

// Run executes the scenario against page. It stops at the first failure and
// returns it wrapped in a *StepError.
func (f *Flow) Run(ctx context.Context, page Page) (*Result, error) {
	start := time.Now()
	res := &Result{}

	f.emit(ctx, Event{Name: EventBeforeRun})
	err := f.run(ctx, page, res)
	res.Duration = time.Since(start)
	if u, uerr := page.URL(ctx); uerr == nil {
		res.FinalURL = u
	}
	f.emit(ctx, Event{Name: EventAfterRun, Result: res, Err: err})

	if err != nil {
		f.logger.Error("smoke test failed", "step", FailedStep(err), "error", err, "duration", res.Duration)
		return res, err
	}
	f.logger.Info("smoke test passed", "login", res.LoginTaken, "duration", res.Duration)
	return res, nil
}

func (f *Flow) step(ctx context.Context, name string, fn func() error) error {
	f.logger.Debug("step", "name", name)
	f.emit(ctx, Event{Name: EventStep, Step: name})
	if err := fn(); err != nil {
		return &StepError{Step: name, Err: err}
	}
	return nil
}

func (f *Flow) run(ctx context.Context, page Page, res *Result) error {
	cfg := f.cfg

	if err := f.step(ctx, StepNavigate, func() error {
		return page.Navigate(ctx, cfg.TargetURL)
	}); err != nil {
		return err
	}

	var (
		entry   Element
		present bool
	)
	if err := f.step(ctx, StepFindEntry, func() error {
		var err error
		entry, present, err = page.TryFind(ctx, cfg.EntrySelector)
		return err
	}); err != nil {
		return err
	}

	if present {
		if err := f.login(ctx, page, entry, res); err != nil {
			return err
		}
	} else {
		f.logger.Debug("no entry control, skipping login branch", "selector", cfg.EntrySelector)
	}

	if err := f.step(ctx, StepEnter, func() error {
		el, err := page.Find(ctx, cfg.EntrySelector)
		if err != nil {
			return err
		}
		return el.Click(ctx)
	}); err != nil {
		return err
	}

	return f.step(ctx, StepAssertName, func() error {
		if _, err := page.Find(ctx, cfg.NameSelector); err != nil {
			return err
		}
		name, err := f.assertText(ctx, page, cfg.NameSelector, cfg.ExpectedName)
		res.Name = name
		return err
	})
}

// login runs the conditional branch: open the entry control, and if that
// lands on an authorization redirect, sign in at the identity provider.
func (f *Flow) login(ctx context.Context, page Page, entry Element, res *Result) error {
	cfg := f.cfg

	var before string
	if err := f.step(ctx, StepOpenEntry, func() error {
		var err error
		if before, err = page.URL(ctx); err != nil {
			return err
		}
		return entry.Click(ctx)
	}); err != nil {
		return err
	}

	var current string
	if err := f.step(ctx, StepAwaitRedirect, func() error {
		var err error
		current, err = f.awaitURLChange(ctx, page, before)
		return err
	}); err != nil {
		return err
	}

	if !strings.Contains(current, cfg.AuthMarker) {
		f.logger.Debug("no authorization redirect", "url", current)
		return nil
	}
	res.LoginTaken = true
	f.logger.Info("authorization redirect", "url", current)

	if err := f.step(ctx, StepFillUsername, func() error {
		return f.injectValue(ctx, page, cfg.UsernameSelector, cfg.Username)
	}); err != nil {
		return err
	}
	if err := f.step(ctx, StepFillPassword, func() error {
		return f.injectValue(ctx, page, cfg.PasswordSelector, cfg.Password)
	}); err != nil {
		return err
	}

	if err := f.step(ctx, StepSubmit, func() error {
		el, err := page.Find(ctx, cfg.SubmitSelector)
		if err != nil {
			return err
		}
		return el.Click(ctx)
	}); err != nil {
		return err
	}

	return f.step(ctx, StepAwaitReturn, func() error {
		return f.awaitURLContains(ctx, page, cfg.ReturnMarker)
	})
}

// awaitURLChange polls until the URL differs from before. The entry control
// may legitimately not navigate, so running out of time is not a failure:
// the last observed URL is returned and the caller decides on it. A URL
// that could not be read on the last poll is a failure.
func (f *Flow) awaitURLChange(ctx context.Context, page Page, before string) (string, error) {
	current := before
	var lastErr error
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		u, err := page.URL(ctx)
		lastErr = err
		if err != nil {
			return false, err
		}
		current = u
		return u != before, nil
	}, f.cfg.RedirectTimeout, f.cfg.PollInterval)
	if err != nil && (ctx.Err() != nil || lastErr != nil) {
		return "", fmt.Errorf("read url after leaving %q: %w", before, err)
	}
	return current, nil
}

func (f *Flow) awaitURLContains(ctx context.Context, page Page, marker string) error {
	var last string
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		u, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		last = u
		return strings.Contains(u, marker), nil
	}, f.cfg.RedirectTimeout, f.cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("url %q never contained %q: %w", last, marker, err)
	}
	return nil
}

// injectValue writes value into the element's value attribute and checks
// that reading the attribute back yields the same string. The echo check
// queries selector again on every poll so a re-rendered field is read live.
func (f *Flow) injectValue(ctx context.Context, page Page, selector, value string) error {
	el, err := page.Find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SetAttribute(ctx, "value", value); err != nil {
		return fmt.Errorf("set value of %s: %w", selector, err)
	}

	var got string
	err = WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		el, err := page.Find(ctx, selector)
		if err != nil {
			return false, err
		}
		v, ok, err := el.Attribute(ctx, "value")
		if err != nil {
			return false, err
		}
		got = v
		return ok && v == value, nil
	}, f.cfg.AssertTimeout, f.cfg.PollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &AssertionError{Subject: selector + " value attribute", Expected: value, Actual: got}
	}
	return nil
}

// assertText retries until the text of selector equals want or the
// assertion window closes. Each poll queries the page again. It returns the
// last text observed.
func (f *Flow) assertText(ctx context.Context, page Page, selector, want string) (string, error) {
	var got string
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		el, err := page.Find(ctx, selector)
		if err != nil {
			return false, err
		}
		t, err := el.Text(ctx)
		if err != nil {
			return false, err
		}
		got = t
		return t == want, nil
	}, f.cfg.AssertTimeout, f.cfg.PollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return got, err
		}
		return got, &AssertionError{Subject: selector + " text", Expected: want, Actual: got}
	}
	return got, nil
}
