package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/satishbabariya/prisma-go-client/runtime/client"
)

// Span attribute keys.
const (
	AttrModel         = attribute.Key("prisma.model")
	AttrAction        = attribute.Key("prisma.action")
	AttrTransactionID = attribute.Key("prisma.transaction_id")
)

// TracingExtension starts a span around every operation. Spans of
// operations issued inside a transaction body carry the transaction id.
func TracingExtension(tracer trace.Tracer) client.Extension {
	return client.Extension{
		Name: "tracing",
		Query: client.QueryExtension{
			AllOperations: func(ctx context.Context, p client.QueryParams) (interface{}, error) {
				name := "prisma:" + p.Operation.String()
				if p.Model != "" {
					name = "prisma:" + p.Model + "." + p.Operation.String()
				}
				attrs := []attribute.KeyValue{AttrAction.String(p.Operation.String())}
				if p.Model != "" {
					attrs = append(attrs, AttrModel.String(p.Model))
				}
				if p.TransactionID != "" {
					attrs = append(attrs, AttrTransactionID.String(p.TransactionID))
				}

				ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
				defer span.End()

				result, err := p.Query(ctx, p.Args)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				return result, err
			},
		},
	}
}
