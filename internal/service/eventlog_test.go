package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/models"
)

// mockEventRepo captures List/Append calls for assertions.
type mockEventRepo struct {
	AppendFn func(ctx context.Context, e models.HvacEvent) error
	ListFn   func(ctx context.Context, from, to time.Time, typ string) ([]models.HvacEvent, error)

	appended []models.HvacEvent
	listArgs []struct {
		from, to time.Time
		typ      string
	}
}

func (m *mockEventRepo) Append(ctx context.Context, e models.HvacEvent) error {
	m.appended = append(m.appended, e)
	if m.AppendFn != nil {
		return m.AppendFn(ctx, e)
	}
	return nil
}

func (m *mockEventRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.HvacEvent, error) {
	m.listArgs = append(m.listArgs, struct {
		from, to time.Time
		typ      string
	}{from, to, typ})
	if m.ListFn != nil {
		return m.ListFn(ctx, from, to, typ)
	}
	return nil, nil
}

func TestEventLogService_List_NormalizesFilter(t *testing.T) {
	repo := &mockEventRepo{}
	svc := NewEventLogService(repo)

	loc := time.FixedZone("CET", 3600)
	from := time.Date(2026, 2, 1, 10, 0, 0, 0, loc)
	to := time.Date(2026, 2, 2, 10, 0, 0, 0, loc)

	if _, err := svc.List(context.Background(), LogFilter{From: from, To: to, Type: " transition "}); err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(repo.listArgs) != 1 {
		t.Fatalf("expected 1 repo call, got %d", len(repo.listArgs))
	}
	got := repo.listArgs[0]
	if got.from.Location() != time.UTC || got.to.Location() != time.UTC {
		t.Errorf("times not normalized to UTC: %v / %v", got.from, got.to)
	}
	if !got.from.Equal(from) || !got.to.Equal(to) {
		t.Errorf("instants changed during normalization")
	}
	if got.typ != "TRANSITION" {
		t.Errorf("type = %q, want TRANSITION", got.typ)
	}
}

func TestEventLogService_List_ZeroTimesPassThrough(t *testing.T) {
	repo := &mockEventRepo{}
	svc := NewEventLogService(repo)

	if _, err := svc.List(context.Background(), LogFilter{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	got := repo.listArgs[0]
	if !got.from.IsZero() || !got.to.IsZero() {
		t.Fatalf("zero bounds must stay zero: %v / %v", got.from, got.to)
	}
}

func TestEventLogService_List_InvalidRange(t *testing.T) {
	repo := &mockEventRepo{
		ListFn: func(context.Context, time.Time, time.Time, string) ([]models.HvacEvent, error) {
			t.Fatal("repo must not be called for invalid range")
			return nil, nil
		},
	}
	svc := NewEventLogService(repo)

	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err := svc.List(context.Background(), LogFilter{From: from, To: to})
	if !errors.Is(err, errInvalidTimeRange) {
		t.Fatalf("expected errInvalidTimeRange, got %v", err)
	}
}

func TestEventRecorder_AppendFailureIsSwallowed(t *testing.T) {
	repo := &mockEventRepo{
		AppendFn: func(context.Context, models.HvacEvent) error {
			return errors.New("disk full")
		},
	}
	rec := NewEventRecorder(repo, logger.Get(logger.ErrorLevel))

	// Must not panic or propagate: control flow never depends on the log.
	rec.Record(context.Background(), models.HvacEvent{Type: models.EventTransition, Description: "x"})

	if len(repo.appended) != 1 {
		t.Fatalf("expected append attempt, got %d", len(repo.appended))
	}
}
