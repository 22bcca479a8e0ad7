package report

import "context"

// Writer drafts prose about a theme from raw notes (e.g. a chat model).
type Writer interface {
	Write(ctx context.Context, theme, notes string) (string, error)
}
