package tracing

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// kafkaCarrier adapts a Kafka header slice. Set replaces an existing key so
// re-injecting into forwarded headers does not duplicate traceparent.
type kafkaCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*kafkaCarrier)(nil)

func (c *kafkaCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *kafkaCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, h := range c.headers {
		keys[i] = h.Key
	}
	return keys
}

// InjectTraceContext returns headers with the span context of ctx added.
func InjectTraceContext(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &kafkaCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &kafkaCarrier{headers: headers})
}

// StartSpanFromKafkaMessage continues the producer's trace, if any, with a
// consumer span.
func StartSpanFromKafkaMessage(ctx context.Context, operationName string, headers []kafka.Header) (context.Context, trace.Span) {
	ctx = ExtractTraceContext(ctx, headers)
	return otel.Tracer(routerTracer).Start(ctx, operationName, trace.WithSpanKind(trace.SpanKindConsumer))
}

// natsCarrier keeps header keys as given; NATS header lookups are case
// sensitive, unlike http.Header.
type natsCarrier nats.Header

func (c natsCarrier) Get(key string) string { return nats.Header(c).Get(key) }

func (c natsCarrier) Set(key, value string) { nats.Header(c).Set(key, value) }

func (c natsCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func InjectNATSHeaders(ctx context.Context, msg *nats.Msg) {
	if msg.Header == nil {
		msg.Header = nats.Header{}
	}
	otel.GetTextMapPropagator().Inject(ctx, natsCarrier(msg.Header))
}

func StartSpanFromNATSMessage(ctx context.Context, operationName string, msg *nats.Msg) (context.Context, trace.Span) {
	if msg.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, natsCarrier(msg.Header))
	}
	return otel.Tracer(routerTracer).Start(ctx, operationName, trace.WithSpanKind(trace.SpanKindConsumer))
}

// GinMiddleware opens a server span per request.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}
