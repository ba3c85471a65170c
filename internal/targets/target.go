// Package targets holds the delivery endpoints rules route to and the
// registry the dispatcher resolves target references against.
//
// A target reports failure through its error. Errors wrapped with Permanent,
// retry.NewFatalError or a fatal pkg/errors value are never retried; every
// other error, including a context deadline, is transient.
package targets

import (
	"context"

	"eventrouter/pkg/errors"
	"eventrouter/pkg/models"
)

type Target interface {
	ID() string
	Invoke(ctx context.Context, env models.Envelope) error
}

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient"
	OutcomePermanent Outcome = "permanent"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func (e *permanentError) IsFatal() bool { return true }

// Permanent marks err as a failure that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.IsPermanent(err):
		return OutcomePermanent
	default:
		return OutcomeTransient
	}
}

// Func is a synchronous in-process handler.
type Func struct {
	id string
	fn func(ctx context.Context, env models.Envelope) error
}

func NewFunc(id string, fn func(ctx context.Context, env models.Envelope) error) *Func {
	return &Func{id: id, fn: fn}
}

func (f *Func) ID() string { return f.id }

func (f *Func) Invoke(ctx context.Context, env models.Envelope) error {
	return f.fn(ctx, env)
}
