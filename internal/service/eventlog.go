package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/models"
	"github.com/jluzny/hag/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}
	return from, to, normalizeEventType(f.Type), nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.HvacEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}

// EventRecorder adapts the event repository to the state machine's
// recorder interface. Append failures are logged, never propagated:
// losing a log entry must not affect control decisions.
type EventRecorder struct {
	eventRepo repository.EventRepo
	log       *logger.Logger
}

func NewEventRecorder(eventRepo repository.EventRepo, log *logger.Logger) *EventRecorder {
	return &EventRecorder{eventRepo: eventRepo, log: log}
}

func (r *EventRecorder) Record(ctx context.Context, ev models.HvacEvent) {
	if err := r.eventRepo.Append(ctx, ev); err != nil {
		r.log.Errorw("failed to append event", "type", ev.Type, "err", err)
	}
}
