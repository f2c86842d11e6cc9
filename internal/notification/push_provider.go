package notification

import "context"

// PushProvider is an external delivery backend. Implementations must be
// safe for concurrent use.
type PushProvider interface {
	GetName() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
	SupportsType(t Type) bool
}
