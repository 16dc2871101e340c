package ports

import "context"

// URLOpener asks the desktop shell to open a URL in the system browser.
// Fire-and-forget: the caller does not depend on the browser's fate.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}
