package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jluzny/hag/internal/models"
	"github.com/jluzny/hag/internal/service"
)

// ---- Service mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockController struct {
	startErr    error
	stopErr     error
	overrideErr error
	offErr      error
	condErr     error
	status      models.Status
	statusErr   error

	lastOverride  service.OverrideParams
	lastCondition models.Condition
	overrideCalls int
	offCalls      int
	condCalls     int
}

func (m *mockController) Start(ctx context.Context) error { return m.startErr }
func (m *mockController) Stop(ctx context.Context) error  { return m.stopErr }
func (m *mockController) ManualOverride(ctx context.Context, p service.OverrideParams) error {
	m.overrideCalls++
	m.lastOverride = p
	return m.overrideErr
}
func (m *mockController) Off(ctx context.Context) error {
	m.offCalls++
	return m.offErr
}
func (m *mockController) SendCondition(ctx context.Context, c models.Condition) error {
	m.condCalls++
	m.lastCondition = c
	return m.condErr
}
func (m *mockController) Status(ctx context.Context) (models.Status, error) {
	return m.status, m.statusErr
}

type mockEventLog struct {
	resp       []models.HvacEvent
	err        error
	lastFilter service.LogFilter
	calls      int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.HvacEvent, error) {
	m.calls++
	m.lastFilter = f
	return m.resp, m.err
}

// newAuthedRouter wires the full route tree with a pass-through token.
func newAuthedRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewHandler(s, nil).InitRoutes()
}

func idleStatus() models.Status {
	return models.Status{
		CurrentState: models.StateIdle,
		SystemMode:   models.SystemAuto,
		CanHeat:      true,
		CanCool:      true,
	}
}
