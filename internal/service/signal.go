package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/ojstore/internal/domain"
)

var tracer = otel.Tracer("service")

// SignalService publishes change events for the realtime collaborator.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, event domain.Event) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Publish")
	defer span.End()

	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	channel := domain.EventChannel(event.DomainID)
	span.SetAttributes(attribute.String("channel", channel), attribute.String("type", event.Type))

	jsonstr, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "encode event")
	}

	err = s.rdb.Publish(ctx, channel, jsonstr).Err()
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "failed to publish event",
			slog.String("module", "signal"),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return errors.Wrap(err, "publish event")
	}

	return nil
}

// NopPublisher drops every event. Used when no redis is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }
