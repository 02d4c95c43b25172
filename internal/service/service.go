package service

import (
	"context"
	"time"

	"github.com/jluzny/hag/internal/homeassistant"
	"github.com/jluzny/hag/internal/hvac"
	"github.com/jluzny/hag/internal/logger"
	"github.com/jluzny/hag/internal/models"
	"github.com/jluzny/hag/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Controller exposes the hvac control operations: lifecycle, manual
// overrides, condition injection and status.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ManualOverride(ctx context.Context, p OverrideParams) error
	Off(ctx context.Context) error
	SendCondition(ctx context.Context, c models.Condition) error
	Status(ctx context.Context) (models.Status, error)
}

// EventLog exposes the append-only log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.HvacEvent, error)
}

// OverrideParams is a manual mode/temperature directive.
type OverrideParams struct {
	Mode       string
	TargetTemp *float64
	Preset     string
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string
}

// SensorIDs names the two whole-system temperature sensors.
type SensorIDs struct {
	Indoor  string
	Outdoor string
}

// Service aggregates all sub-services.
type Service struct {
	Controller
	EventLog
	Authorization
}

func NewService(repos *repository.Repository, machine *hvac.Machine, feed <-chan homeassistant.SensorUpdate, sensors SensorIDs, signingKey string, log *logger.Logger) *Service {
	return &Service{
		Controller:    NewControllerService(machine, feed, sensors, log),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, signingKey),
	}
}
