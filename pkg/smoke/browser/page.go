package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/pessu/auth0-smoke/pkg/smoke"
)

var (
	_ smoke.Page    = (*Page)(nil)
	_ smoke.Element = (*Element)(nil)
)

// Page adapts a Rod page to smoke.Page.
type Page struct {
	page    *rod.Page
	timeout time.Duration
}

// Rod returns the underlying page, e.g. for screenshots on failure.
func (p *Page) Rod() *rod.Page {
	return p.page
}

// Navigate opens url and waits for the load event, bounded by the
// default timeout.
func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx).Timeout(p.timeout)
	defer pg.CancelTimeout()

	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return nil
}

// TryFind queries the current document once.
func (p *Page) TryFind(ctx context.Context, selector string) (smoke.Element, bool, error) {
	ok, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", selector, err)
	}
	if !ok {
		return nil, false, nil
	}
	return p.element(ctx, el, selector), true, nil
}

// Find retries the query until it matches or the default timeout elapses.
func (p *Page) Find(ctx context.Context, selector string) (smoke.Element, error) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	el, err := p.page.Context(tctx).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s after %v: %w", selector, p.timeout, smoke.ErrNotFound)
		}
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	return p.element(ctx, el, selector), nil
}

// URL reports the address of the page's main frame.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Element adapts a Rod element to smoke.Element. Every action is bounded
// by the client's command timeout.
type Element struct {
	el       *rod.Element
	selector string
	timeout  time.Duration
}

func (p *Page) element(ctx context.Context, el *rod.Element, selector string) *Element {
	return &Element{el: el.Context(ctx), selector: selector, timeout: p.timeout}
}

// do runs fn on a clone of the element bound to ctx and the command
// timeout. Running out of time while ctx is live maps to smoke.ErrTimeout.
func (e *Element) do(ctx context.Context, action string, fn func(el *rod.Element) error) error {
	el := e.el.Context(ctx).Timeout(e.timeout)
	defer el.CancelTimeout()

	if err := fn(el); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s %s after %v: %w", action, e.selector, e.timeout, smoke.ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", action, e.selector, err)
	}
	return nil
}

// Click scrolls the element into view, waits until it is interactable and
// clicks it with the left button. An element that stays covered fails with
// smoke.ErrTimeout once the command timeout elapses.
func (e *Element) Click(ctx context.Context) error {
	return e.do(ctx, "click", func(el *rod.Element) error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

// SetAttribute writes the attribute in the page. No input or change events
// fire.
func (e *Element) SetAttribute(ctx context.Context, name, value string) error {
	return e.do(ctx, "set attribute of", func(el *rod.Element) error {
		_, err := el.Eval(`(name, value) => this.setAttribute(name, value)`, name, value)
		return err
	})
}

// Attribute reads the attribute from the DOM. ok is false when the element
// has no such attribute.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := e.do(ctx, "read attribute of", func(el *rod.Element) error {
		v, err := el.Attribute(name)
		if err != nil {
			return err
		}
		if v != nil {
			value, ok = *v, true
		}
		return nil
	})
	return value, ok, err
}

// Text returns the element's rendered text.
func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.do(ctx, "read text of", func(el *rod.Element) error {
		var err error
		text, err = el.Text()
		return err
	})
	return text, err
}
