package smoke

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errDetached = errors.New("node is detached from document")

// fakePage is an in-memory browser: a current URL plus the elements of the
// current document, keyed by selector. Clicking an element may load another
// document.
type fakePage struct {
	mu   sync.Mutex
	url  string
	doc  map[string]*fakeElement
	docs map[string]map[string]*fakeElement // url -> document

	// selectors TryFind reports missing, as if rendered only after the
	// guarded lookup ran
	late map[string]bool
	// per-selector queue of Find results: true hands out a node that was
	// already replaced in the document
	stale map[string][]bool

	navigateErr error
	clicks      []string

	// urlErr, once set, fails every URL read
	urlErr error
}

func newFakePage() *fakePage {
	return &fakePage{
		docs:  make(map[string]map[string]*fakeElement),
		late:  make(map[string]bool),
		stale: make(map[string][]bool),
	}
}

// route registers the document served at url.
func (p *fakePage) route(url string, els ...*fakeElement) {
	doc := make(map[string]*fakeElement, len(els))
	for _, el := range els {
		el.page = p
		doc[el.selector] = el
	}
	p.docs[url] = doc
}

func (p *fakePage) load(url string) {
	p.url = url
	p.doc = p.docs[url]
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.load(url)
	return nil
}

func (p *fakePage) TryFind(_ context.Context, selector string) (Element, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.late[selector] {
		delete(p.late, selector)
		return nil, false, nil
	}
	el, ok := p.doc[selector]
	if !ok {
		return nil, false, nil
	}
	return el, true, nil
}

func (p *fakePage) Find(_ context.Context, selector string) (Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.doc[selector]
	if !ok {
		return nil, fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	if q := p.stale[selector]; len(q) > 0 {
		p.stale[selector] = q[1:]
		if q[0] {
			return &fakeElement{page: p, selector: selector, detached: true}, nil
		}
	}
	return el, nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.urlErr != nil {
		return "", p.urlErr
	}
	return p.url, nil
}

type fakeElement struct {
	page     *fakePage
	selector string
	text     string
	attrs    map[string]string

	// href is loaded on click when set
	href string
	// onClick runs (with the page lock held) after href handling
	onClick func(p *fakePage)
	// readOnly drops SetAttribute calls
	readOnly bool
	// detached nodes fail every read
	detached bool
	// rerender swaps the node for a fresh copy once its attribute is set
	rerender bool
}

func el(selector string) *fakeElement {
	return &fakeElement{selector: selector, attrs: make(map[string]string)}
}

func (e *fakeElement) linkTo(url string) *fakeElement { e.href = url; return e }

func (e *fakeElement) withText(s string) *fakeElement { e.text = s; return e }

func (e *fakeElement) Click(context.Context) error {
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, e.selector)
	if e.href != "" {
		p.load(e.href)
	}
	if e.onClick != nil {
		e.onClick(p)
	}
	return nil
}

func (e *fakeElement) SetAttribute(_ context.Context, name, value string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detached {
		return errDetached
	}
	if !e.readOnly {
		e.attrs[name] = value
	}
	if e.rerender {
		fresh := *e
		fresh.rerender = false
		e.detached = true
		e.page.doc[e.selector] = &fresh
	}
	return nil
}

func (e *fakeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detached {
		return "", false, errDetached
	}
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Text(context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.detached {
		return "", errDetached
	}
	return e.text, nil
}
