// Package deadletter decides what happens to a delivery after a transient
// target failure: another attempt after a backoff delay, or a record in a
// dead-letter sink once the attempts are used up.
package deadletter

import (
	"context"

	"eventrouter/pkg/models"
)

// Sink stores deliveries that will not be attempted again.
type Sink interface {
	Name() string
	Record(ctx context.Context, attempt models.DeliveryAttempt) error
}

// Lister is implemented by sinks that can be read back through the API.
type Lister interface {
	List(ctx context.Context, limit, offset int) ([]models.DeliveryAttempt, error)
}
