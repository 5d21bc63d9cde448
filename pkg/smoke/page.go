package smoke

import "context"

// Page is the browser capability the scenario needs. Calls are issued one
// at a time and each returns once the browser has executed it.
type Page interface {
	// Navigate loads url and returns once the load event fired.
	Navigate(ctx context.Context, url string) error

	// TryFind looks up selector without waiting. A miss is not an error:
	// it reports ok == false.
	TryFind(ctx context.Context, selector string) (el Element, ok bool, err error)

	// Find waits, within the driver's default timeout, for selector to
	// match. A miss returns an error wrapping ErrNotFound.
	Find(ctx context.Context, selector string) (Element, error)

	// URL returns the page's current address.
	URL(ctx context.Context) (string, error)
}

// Element is a handle to one matched DOM node.
type Element interface {
	Click(ctx context.Context) error

	// SetAttribute sets the attribute directly, without dispatching input
	// events.
	SetAttribute(ctx context.Context, name, value string) error

	// Attribute reads an attribute back. ok is false when it is absent.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)

	// Text returns the element's visible text.
	Text(ctx context.Context) (string, error)
}
