package models

import (
	"time"

	"github.com/google/uuid"
)

type EnvelopeBuilder struct {
	envelope Envelope
}

func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: Envelope{
			Version: "0",
			Detail:  make(map[string]interface{}),
		},
	}
}

func (b *EnvelopeBuilder) WithID(id string) *EnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *EnvelopeBuilder) WithSource(source string) *EnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *EnvelopeBuilder) WithDetailType(detailType string) *EnvelopeBuilder {
	b.envelope.DetailType = detailType
	return b
}

func (b *EnvelopeBuilder) WithAccount(account string) *EnvelopeBuilder {
	b.envelope.Account = account
	return b
}

func (b *EnvelopeBuilder) WithRegion(region string) *EnvelopeBuilder {
	b.envelope.Region = region
	return b
}

func (b *EnvelopeBuilder) WithTime(t time.Time) *EnvelopeBuilder {
	b.envelope.Time = t
	return b
}

func (b *EnvelopeBuilder) WithResources(resources ...string) *EnvelopeBuilder {
	b.envelope.Resources = append(b.envelope.Resources, resources...)
	return b
}

func (b *EnvelopeBuilder) WithDetail(detail map[string]interface{}) *EnvelopeBuilder {
	b.envelope.Detail = detail
	return b
}

func (b *EnvelopeBuilder) WithMetadata(metadata Metadata) *EnvelopeBuilder {
	b.envelope.Metadata = metadata
	return b
}

func (b *EnvelopeBuilder) WithTraceID(traceID string) *EnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

func (b *EnvelopeBuilder) WithIngress(ingress string) *EnvelopeBuilder {
	b.envelope.Metadata.Ingress = ingress
	return b
}

// Build returns a detached copy, so later builder calls cannot alter an
// envelope already handed out.
func (b *EnvelopeBuilder) Build() Envelope {
	env := b.envelope.Clone()
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.Time.IsZero() {
		env.Time = time.Now().UTC()
	}
	if env.Detail == nil {
		env.Detail = make(map[string]interface{})
	}
	return env
}

// Normalize fills defaults on an envelope decoded from the wire.
func Normalize(env Envelope, ingress string, now time.Time) Envelope {
	out := env.Clone()
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Version == "" {
		out.Version = "0"
	}
	if out.Time.IsZero() {
		out.Time = now.UTC()
	}
	if out.Detail == nil {
		out.Detail = make(map[string]interface{})
	}
	if out.Metadata.Ingress == "" {
		out.Metadata.Ingress = ingress
	}
	if out.Metadata.ReceivedAt.IsZero() {
		out.Metadata.ReceivedAt = now.UTC()
	}
	return out
}
