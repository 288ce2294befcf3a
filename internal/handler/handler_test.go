package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"turn-service/internal/maintenance"
	"turn-service/internal/middleware"
	"turn-service/internal/model"
	"turn-service/internal/queue"
	"turn-service/pkg/config"
	"turn-service/pkg/database"
	"turn-service/pkg/jwtutil"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	e        *echo.Echo
	db       *gorm.DB
	operator string
	admin    string
	stranger string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.InitDB(&config.DBConfig{
		Driver:   config.DriverSQLite,
		Path:     fmt.Sprintf("file:http_%s?mode=memory&cache=shared", name),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, db.Create(&model.Category{ID: "general", OrganizationID: "org-1", Name: "General", EstimatedMinutes: 4}).Error)

	j := jwtutil.NewJWTUtil(&config.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})
	e := echo.New()
	RegisterRoutes(e, Handlers{
		Queue:  NewQueueHandler(queue.NewEngine(db), queue.NewQueryService(db)),
		Admin:  NewAdminHandler(maintenance.NewService(db), 1),
		Health: NewHealthHandler(db, nil),
	}, middleware.NewAuth(j))

	s := &testServer{e: e, db: db}
	s.operator, err = j.GenerateToken("op@example.com", 1, "org-1", "operator")
	require.NoError(t, err)
	s.stranger, err = j.GenerateToken("other@example.com", 2, "org-2", "operator")
	require.NoError(t, err)
	s.admin, err = j.GenerateToken("root@example.com", 3, "", jwtutil.RoleAdmin)
	require.NoError(t, err)
	return s
}

func (s *testServer) do(method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) issue(t *testing.T, name string) model.Ticket {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/orgs/org-1/queues/general/tickets", "",
		strings.NewReader(fmt.Sprintf(`{"display_name":%q}`, name)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ticket model.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	return ticket
}

func TestQueueFlow(t *testing.T) {
	s := newTestServer(t)

	alice := s.issue(t, "Alice")
	bob := s.issue(t, "Bob")
	assert.Equal(t, 1, alice.Position)
	assert.Equal(t, 2, bob.Position)
	assert.Equal(t, int64(2), bob.SequenceNumber)

	rec := s.do(http.MethodGet, "/api/orgs/org-1/queues/general", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count   int            `json:"count"`
		Tickets []model.Ticket `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "Alice", list.Tickets[0].DisplayName)

	rec = s.do(http.MethodPost, "/api/orgs/org-1/queues/general/next", s.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var called model.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &called))
	assert.Equal(t, alice.ID, called.ID)
	assert.Equal(t, model.StatusCalled, called.Status)

	rec = s.do(http.MethodGet, "/api/orgs/org-1/queues/general/current", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current struct {
		Current *model.Ticket `json:"current"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	require.NotNil(t, current.Current)
	assert.Equal(t, alice.ID, current.Current.ID)

	rec = s.do(http.MethodGet, "/api/orgs/org-1/queues/general/position?identifier="+bob.ShortCode, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pos queue.PositionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, 1, pos.Position)

	rec = s.do(http.MethodGet, "/api/tickets/lookup?identifier="+bob.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var global queue.GlobalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &global))
	assert.Equal(t, "org-1", global.OrganizationID)
	assert.Equal(t, "general", global.CategoryID)
	require.NotNil(t, global.Current)
	assert.Equal(t, alice.ID, global.Current.ID)

	rec = s.do(http.MethodGet, "/api/orgs/org-1/queues/general/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats queue.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, queue.Stats{WaitingCount: 1, ServedTodayCount: 1, ETAMinutes: 4}, stats)

	rec = s.do(http.MethodPost, "/api/orgs/org-1/queues/general/next", s.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/orgs/org-1/queues/general/next", s.operator, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"no waiting tickets"}`, rec.Body.String())
}

func TestIssueTicket_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/orgs/org-1/queues/general/tickets", "", strings.NewReader(`{"display_name":"   "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/orgs/org-1/queues/missing/tickets", "", strings.NewReader(`{"display_name":"Ann"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/orgs/org-1/queues/general/tickets", "", strings.NewReader(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookups_NotFoundAndMissingIdentifier(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/tickets/lookup", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/tickets/lookup?identifier=NOPE00", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/orgs/org-1/queues/general/position", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/orgs/org-1/queues/general/position?identifier=Zed", "", nil).Code)
}

func TestCallNext_RequiresOperatorOfOrganization(t *testing.T) {
	s := newTestServer(t)
	s.issue(t, "Alice")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/orgs/org-1/queues/general/next", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/orgs/org-1/queues/general/next", s.stranger, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/orgs/org-1/queues/general/next", s.admin, nil).Code)
}

func TestDeleteQueue(t *testing.T) {
	s := newTestServer(t)
	s.issue(t, "Alice")

	rec := s.do(http.MethodDelete, "/api/orgs/org-1/queues/general", s.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())

	rec = s.do(http.MethodDelete, "/api/orgs/org-1/queues/general", s.operator, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var n int64
	require.NoError(t, s.db.Model(&model.Ticket{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	s.issue(t, "Alice")

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/admin/sweep", s.operator, nil).Code)

	rec := s.do(http.MethodPost, "/api/admin/sweep?days=1", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tickets_deleted":0,"snapshots_deleted":0}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/admin/sweep?days=-2", s.admin, nil).Code)

	rec = s.do(http.MethodPost, "/api/admin/repair", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queues_scanned":1,"categories_fixed":0}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/admin/integrity", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"problems":[]}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/admin/overview", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ov maintenance.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Equal(t, int64(1), ov.Categories)
	assert.Equal(t, int64(1), ov.WaitingTickets)
}

func TestAdminActivity(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.db.Create(&model.Organization{ID: "org-1", OwnerEmail: "op@example.com", Name: "Clinic"}).Error)
	s.issue(t, "Alice")
	s.issue(t, "Bob")

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/admin/activity", s.operator, nil).Code)

	rec := s.do(http.MethodGet, "/api/admin/activity", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reports []maintenance.OrganizationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "Clinic", reports[0].Name)
	assert.Equal(t, int64(1), reports[0].Categories)
	assert.Equal(t, int64(2), reports[0].ActiveTickets)

	rec = s.do(http.MethodGet, "/api/admin/activity?organization_id=org-1&days=3", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Days         int                    `json:"days"`
		TicketsByDay []maintenance.DayCount `json:"tickets_by_day"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Days)
	require.Len(t, body.TicketsByDay, 1)
	assert.Equal(t, int64(2), body.TicketsByDay[0].Total)

	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodGet, "/api/admin/activity?organization_id=org-1&days=0", s.admin, nil).Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/health?check=deps", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db_status":"ok"`)
	assert.NotContains(t, rec.Body.String(), "redis_status")
}

func TestHealthCheck_RedisDown(t *testing.T) {
	s := newTestServer(t)
	rdb, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	e := echo.New()
	e.GET("/health", NewHealthHandler(s.db, rdb).HealthCheck)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?check=deps", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis_status":"error"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
