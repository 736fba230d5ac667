package usecase

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/totegamma/ojstore/internal/domain"
)

var tracer = otel.Tracer("usecase")

// notify publishes after the store call has committed. A failed publish is
// logged and does not fail the operation.
func notify(ctx context.Context, pub Publisher, event domain.Event) {
	if pub == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	if err := pub.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "event not delivered",
			slog.String("module", "usecase"),
			slog.String("type", event.Type),
			slog.String("domain", event.DomainID),
			slog.String("error", err.Error()),
		)
	}
}

func notFound(key domain.DocumentKey) error {
	return domain.NotFoundError{Resource: key.DocType.String() + " " + key.DocID.String()}
}
