package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_WireFormat(t *testing.T) {
	raw := `{
		"id": "7bf73129-1428-4cd3-a780-95db273d1602",
		"version": "0",
		"source": "aws.ec2",
		"detail-type": "EC2 Instance State-change Notification",
		"account": "123456789012",
		"region": "us-east-1",
		"time": "2024-03-01T10:07:30Z",
		"resources": ["arn:aws:ec2:us-east-1:123456789012:instance/i-abc"],
		"detail": {"instance-id": "i-abc", "state": "stopped"}
	}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "EC2 Instance State-change Notification", env.DetailType)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 7, 30, 0, time.UTC), env.Time)
	require.NoError(t, ValidateEnvelope(&env))

	state, ok := env.DetailField("state")
	require.True(t, ok)
	assert.Equal(t, "stopped", state)

	m := env.ToMap()
	assert.Equal(t, "aws.ec2", m["source"])
	assert.Equal(t, "2024-03-01T10:07:30Z", m["time"])
	assert.Equal(t, []interface{}{"arn:aws:ec2:us-east-1:123456789012:instance/i-abc"}, m["resources"])
}

func TestEnvelope_CloneIsDeep(t *testing.T) {
	env := NewEnvelopeBuilder().
		WithSource("aws.s3").
		WithDetailType("Object Created").
		WithResources("arn:aws:s3:::bucket").
		WithDetail(map[string]interface{}{
			"bucket": map[string]interface{}{"name": "event-demo-bucket"},
			"tags":   []interface{}{"a", "b"},
		}).
		Build()

	clone := env.Clone()
	clone.Resources[0] = "changed"
	clone.Detail["bucket"].(map[string]interface{})["name"] = "changed"
	clone.Detail["tags"].([]interface{})[0] = "changed"

	assert.Equal(t, "arn:aws:s3:::bucket", env.Resources[0])
	name, _ := env.DetailField("bucket", "name")
	assert.Equal(t, "event-demo-bucket", name)
	assert.Equal(t, "a", env.Detail["tags"].([]interface{})[0])
}

func TestEnvelopeBuilder_Defaults(t *testing.T) {
	b := NewEnvelopeBuilder().WithSource("aws.signin").WithDetailType("AWS Console Sign In via CloudTrail")
	first := b.Build()
	second := b.Build()

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Time.IsZero())
	assert.NotNil(t, first.Detail)
	assert.Equal(t, "0", first.Version)
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	out := Normalize(Envelope{Source: "custom.app", DetailType: "Order Placed"}, "http", now)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "0", out.Version)
	assert.Equal(t, now, out.Time)
	assert.NotNil(t, out.Detail)
	assert.Equal(t, "http", out.Metadata.Ingress)
	assert.Equal(t, now, out.Metadata.ReceivedAt)

	kept := Normalize(Envelope{ID: "given", Metadata: Metadata{Ingress: "kafka"}}, "http", now)
	assert.Equal(t, "given", kept.ID)
	assert.Equal(t, "kafka", kept.Metadata.Ingress)
}

func TestValidateEnvelope(t *testing.T) {
	valid := func() Envelope {
		return NewEnvelopeBuilder().WithSource("aws.s3").WithDetailType("Object Created").Build()
	}

	tests := []struct {
		name  string
		edit  func(e *Envelope)
		field string
	}{
		{"missing id", func(e *Envelope) { e.ID = "" }, "id"},
		{"missing source", func(e *Envelope) { e.Source = "" }, "source"},
		{"long source", func(e *Envelope) { e.Source = strings.Repeat("s", MaxSourceLength+1) }, "source"},
		{"missing detail type", func(e *Envelope) { e.DetailType = "" }, "detail-type"},
		{"long detail type", func(e *Envelope) { e.DetailType = strings.Repeat("d", MaxDetailTypeLength+1) }, "detail-type"},
		{"zero time", func(e *Envelope) { e.Time = time.Time{} }, "time"},
		{"too many resources", func(e *Envelope) { e.Resources = make([]string, MaxResources+1) }, "resources"},
		{"nil detail", func(e *Envelope) { e.Detail = nil }, "detail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid()
			tt.edit(&env)
			err := ValidateEnvelope(&env)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Error(t, ValidateEnvelope(nil))
}
