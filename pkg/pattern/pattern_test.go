package pattern

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrouter/pkg/models"
)

func envelope(source, detailType string, detail map[string]interface{}) models.Envelope {
	return models.NewEnvelopeBuilder().
		WithID("evt-1").
		WithSource(source).
		WithDetailType(detailType).
		WithTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).
		WithDetail(detail).
		Build()
}

func TestCompile_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{source: [}`},
		{name: "not an object", doc: `["aws.s3"]`},
		{name: "empty pattern", doc: `{}`},
		{name: "unknown top-level field", doc: `{"sauce": ["aws.s3"]}`},
		{name: "scalar leaf", doc: `{"source": "aws.s3"}`},
		{name: "empty value set", doc: `{"source": []}`},
		{name: "detail not object", doc: `{"detail": ["x"]}`},
		{name: "source as object", doc: `{"source": {"name": ["x"]}}`},
		{name: "empty nested object", doc: `{"detail": {"bucket": {}}}`},
		{name: "nested array", doc: `{"detail": {"state": [["stopped"]]}}`},
		{name: "unknown operator", doc: `{"detail": {"state": [{"regex": "st.*"}]}}`},
		{name: "operator with two keys", doc: `{"detail": {"state": [{"prefix": "a", "suffix": "b"}]}}`},
		{name: "prefix not string", doc: `{"detail": {"state": [{"prefix": 1}]}}`},
		{name: "exists not bool", doc: `{"detail": {"state": [{"exists": "yes"}]}}`},
		{name: "exists combined", doc: `{"detail": {"state": [{"exists": true}, "x"]}}`},
		{name: "numeric odd args", doc: `{"detail": {"n": [{"numeric": [">", 1, "<"]}]}}`},
		{name: "numeric bad op", doc: `{"detail": {"n": [{"numeric": ["!=", 1]}]}}`},
		{name: "numeric bad operand", doc: `{"detail": {"n": [{"numeric": [">", "one"]}]}}`},
		{name: "trailing data", doc: `{"source": ["a"]} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrMalformedPattern), "error should wrap ErrMalformedPattern: %v", err)
		})
	}
}

func TestCompile_TypedTree(t *testing.T) {
	p := MustCompile(`{"source": ["aws.s3"], "detail": {"bucket": {"name": ["demo"]}}}`)

	root := p.Root()
	require.Equal(t, KindFields, root.Kind)
	require.Len(t, root.Fields, 2)
	assert.Equal(t, "detail", root.Fields[0].Name)
	assert.Equal(t, "source", root.Fields[1].Name)

	bucket := root.Fields[0].Node.Fields[0]
	assert.Equal(t, "bucket", bucket.Name)
	assert.Equal(t, KindFields, bucket.Node.Kind)

	name := bucket.Node.Fields[0]
	assert.Equal(t, KindValueSet, name.Node.Kind)
	require.Len(t, name.Node.Values, 1)
	assert.Equal(t, OpEquals, name.Node.Values[0].Op)
	assert.Equal(t, "demo", name.Node.Values[0].Value)
}

func TestPattern_Matches(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		env     models.Envelope
		want    bool
	}{
		{
			name:    "object created in bucket",
			pattern: `{"source": ["aws.s3"], "detail-type": ["Object Created"], "detail": {"bucket": {"name": ["demo-bucket"]}}}`,
			env:     envelope("aws.s3", "Object Created", map[string]interface{}{"bucket": map[string]interface{}{"name": "demo-bucket"}, "object": map[string]interface{}{"key": "a.txt"}}),
			want:    true,
		},
		{
			name:    "object created in other bucket",
			pattern: `{"source": ["aws.s3"], "detail": {"bucket": {"name": ["demo-bucket"]}}}`,
			env:     envelope("aws.s3", "Object Created", map[string]interface{}{"bucket": map[string]interface{}{"name": "other"}}),
			want:    false,
		},
		{
			name:    "console sign in, detail wildcard",
			pattern: `{"source": ["aws.signin"], "detail-type": ["AWS Console Sign In via CloudTrail"]}`,
			env:     envelope("aws.signin", "AWS Console Sign In via CloudTrail", map[string]interface{}{"anything": 1}),
			want:    true,
		},
		{
			name:    "source not in set",
			pattern: `{"source": ["aws.signin"]}`,
			env:     envelope("aws.s3", "Object Created", nil),
			want:    false,
		},
		{
			name:    "multi-value detail-type set",
			pattern: `{"detail-type": ["A", "B", "C"]}`,
			env:     envelope("x", "B", nil),
			want:    true,
		},
		{
			name:    "instance stopped",
			pattern: `{"source": ["aws.ec2"], "detail": {"state": ["stopped", "terminated"]}}`,
			env:     envelope("aws.ec2", "EC2 Instance State-change Notification", map[string]interface{}{"state": "terminated"}),
			want:    true,
		},
		{
			name:    "instance running",
			pattern: `{"source": ["aws.ec2"], "detail": {"state": ["stopped", "terminated"]}}`,
			env:     envelope("aws.ec2", "EC2 Instance State-change Notification", map[string]interface{}{"state": "running"}),
			want:    false,
		},
		{
			name:    "required detail field absent fails closed",
			pattern: `{"detail": {"state": ["stopped"]}}`,
			env:     envelope("aws.ec2", "x", map[string]interface{}{"other": "stopped"}),
			want:    false,
		},
		{
			name:    "required nested object absent fails closed",
			pattern: `{"detail": {"bucket": {"name": ["b"]}}}`,
			env:     envelope("aws.s3", "x", map[string]interface{}{"bucket": "b"}),
			want:    false,
		},
		{
			name:    "alarm state transition",
			pattern: `{"source": ["aws.cloudwatch"], "detail-type": ["CloudWatch Alarm State Change"], "detail": {"state": {"value": ["ALARM"]}, "previousState": {"value": ["OK"]}}}`,
			env: envelope("aws.cloudwatch", "CloudWatch Alarm State Change", map[string]interface{}{
				"state":         map[string]interface{}{"value": "ALARM"},
				"previousState": map[string]interface{}{"value": "OK"},
			}),
			want: true,
		},
		{
			name:    "build status",
			pattern: `{"source": ["aws.codebuild"], "detail": {"build-status": ["FAILED", "STOPPED"], "project-name": [{"prefix": "svc-"}]}}`,
			env: envelope("aws.codebuild", "CodeBuild Build State Change", map[string]interface{}{
				"build-status": "FAILED",
				"project-name": "svc-api",
			}),
			want: true,
		},
		{
			name:    "array value matches any element",
			pattern: `{"detail": {"tags": ["prod"]}}`,
			env:     envelope("x", "y", map[string]interface{}{"tags": []interface{}{"dev", "prod"}}),
			want:    true,
		},
		{
			name:    "numeric equality across int and float",
			pattern: `{"detail": {"count": [3]}}`,
			env:     envelope("x", "y", map[string]interface{}{"count": 3}),
			want:    true,
		},
		{
			name:    "string does not equal number",
			pattern: `{"detail": {"count": ["3"]}}`,
			env:     envelope("x", "y", map[string]interface{}{"count": 3}),
			want:    false,
		},
		{
			name:    "null literal",
			pattern: `{"detail": {"reason": [null]}}`,
			env:     envelope("x", "y", map[string]interface{}{"reason": nil}),
			want:    true,
		},
		{
			name:    "boolean literal",
			pattern: `{"detail": {"ok": [true]}}`,
			env:     envelope("x", "y", map[string]interface{}{"ok": true}),
			want:    true,
		},
		{
			name:    "exists true",
			pattern: `{"detail": {"error": [{"exists": true}]}}`,
			env:     envelope("x", "y", map[string]interface{}{"error": map[string]interface{}{"code": 1}}),
			want:    true,
		},
		{
			name:    "exists false with absent field",
			pattern: `{"detail": {"error": [{"exists": false}]}}`,
			env:     envelope("x", "y", map[string]interface{}{}),
			want:    true,
		},
		{
			name:    "exists false with present field",
			pattern: `{"detail": {"error": [{"exists": false}]}}`,
			env:     envelope("x", "y", map[string]interface{}{"error": "boom"}),
			want:    false,
		},
		{
			name:    "anything-but",
			pattern: `{"detail": {"state": [{"anything-but": ["running", "pending"]}]}}`,
			env:     envelope("x", "y", map[string]interface{}{"state": "stopped"}),
			want:    true,
		},
		{
			name:    "anything-but excluded",
			pattern: `{"detail": {"state": [{"anything-but": "running"}]}}`,
			env:     envelope("x", "y", map[string]interface{}{"state": "running"}),
			want:    false,
		},
		{
			name:    "numeric range",
			pattern: `{"detail": {"cpu": [{"numeric": [">=", 80, "<", 100]}]}}`,
			env:     envelope("x", "y", map[string]interface{}{"cpu": 91.5}),
			want:    true,
		},
		{
			name:    "numeric range miss",
			pattern: `{"detail": {"cpu": [{"numeric": [">=", 80, "<", 100]}]}}`,
			env:     envelope("x", "y", map[string]interface{}{"cpu": 100}),
			want:    false,
		},
		{
			name:    "suffix",
			pattern: `{"detail": {"object": {"key": [{"suffix": ".png"}]}}}`,
			env:     envelope("x", "y", map[string]interface{}{"object": map[string]interface{}{"key": "img/cat.png"}}),
			want:    true,
		},
		{
			name:    "resources",
			pattern: `{"resources": ["sched-1"]}`,
			env:     models.NewEnvelopeBuilder().WithSource("scheduler").WithDetailType("Scheduled Event").WithResources("sched-0", "sched-1").Build(),
			want:    true,
		},
		{
			name:    "account required but empty",
			pattern: `{"account": ["123"]}`,
			env:     envelope("x", "y", nil),
			want:    false,
		},
		{
			name:    "value set against object fails",
			pattern: `{"detail": {"bucket": ["demo"]}}`,
			env:     envelope("x", "y", map[string]interface{}{"bucket": map[string]interface{}{"name": "demo"}}),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile([]byte(tt.pattern))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Matches(tt.env))
		})
	}
}

func TestPattern_MatchesIsPure(t *testing.T) {
	p := MustCompile(`{"source": ["aws.ec2"], "detail": {"state": ["stopped", "terminated"], "tags": [{"prefix": "team-"}]}}`)
	env := envelope("aws.ec2", "x", map[string]interface{}{
		"state": "stopped",
		"tags":  []interface{}{"env-prod", "team-core"},
	})
	before := env.Clone()

	first := p.Matches(env)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, p.Matches(env))
	}
	assert.True(t, first)
	assert.Equal(t, before, env)
}

func TestPattern_NilNeverMatches(t *testing.T) {
	var p *Pattern
	assert.False(t, Matches(p, envelope("x", "y", nil)))
}

func TestPattern_JSONRoundTrip(t *testing.T) {
	p := MustCompile(`{"source":["aws.s3"],"detail":{"bucket":{"name":["b"]}}}`)

	data, err := p.MarshalJSON()
	require.NoError(t, err)

	var decoded Pattern
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, p.String(), decoded.String())

	var bad Pattern
	assert.Error(t, bad.UnmarshalJSON([]byte(`{"source": "x"}`)))
}

func TestFromMap_YAMLShapes(t *testing.T) {
	p, err := FromMap(map[string]interface{}{
		"source": []string{"aws.ec2"},
		"detail": map[string]interface{}{
			"state": []interface{}{"stopped"},
			"count": []interface{}{2},
		},
	})
	require.NoError(t, err)

	env := envelope("aws.ec2", "x", map[string]interface{}{"state": "stopped", "count": 2.0})
	assert.True(t, p.Matches(env))
}
