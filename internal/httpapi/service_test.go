package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/pettrail/pettrail/internal/cache"
	"github.com/pettrail/pettrail/internal/clock"
	"github.com/pettrail/pettrail/internal/db"
	"github.com/pettrail/pettrail/internal/kv"
	"github.com/pettrail/pettrail/internal/orchestrator"
	"github.com/pettrail/pettrail/internal/queue"
	"github.com/pettrail/pettrail/internal/remote"
	"github.com/pettrail/pettrail/internal/validate"
)

var apiNow = time.Now().Add(-time.Minute)

func testService(t *testing.T) (*Service, *remote.Memory, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "api-test.db")
	store, err := db.NewStore(db.Config{Path: path, LogLevel: logger.Silent})
	require.NoError(t, err)

	clk := clock.System{}
	mem := remote.NewMemory()
	orc := orchestrator.New(
		validate.New(clk, validate.Options{}),
		mem,
		cache.New(kv.NewSQLiteStore(store), clk),
		queue.New(store, clk, queue.Options{}),
		clk,
		orchestrator.Options{},
	)

	return New(orc), mem, func() { _ = store.Close() }
}

// ServiceSuite is a test suite for the HTTP surface.
type ServiceSuite struct {
	suite.Suite
	service *Service
	remote  *remote.Memory
	cleanup func()
}

func (s *ServiceSuite) SetupTest() {
	s.service, s.remote, s.cleanup = testService(s.T())
}

func (s *ServiceSuite) TearDownTest() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.service.Router().ServeHTTP(rec, req)
	return rec
}

func medicationBody(name string) map[string]any {
	return map[string]any{
		"owner_id":   "u1",
		"subject_id": "p1",
		"type":       "medication",
		"timestamp":  apiNow.Format(time.RFC3339),
		"medication": map[string]any{"name": name, "dosage": 2.5, "unit": "mg"},
	}
}

func (s *ServiceSuite) TestLogSessionCreated() {
	rec := s.request(http.MethodPost, "/sessions", medicationBody("Benazepril"))

	require.Equal(s.T(), http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	s.NotEmpty(resp["session_id"])
	s.Equal(1, s.remote.SessionCount())
}

func (s *ServiceSuite) TestLogSessionValidationFailure() {
	body := medicationBody("")
	rec := s.request(http.MethodPost, "/sessions", body)

	require.Equal(s.T(), http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	s.NotEmpty(resp["issues"])
	s.Zero(s.remote.SessionCount())
}

func (s *ServiceSuite) TestDuplicateConflict() {
	rec := s.request(http.MethodPost, "/sessions", medicationBody("Benazepril"))
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &created))

	// Resubmitting with the first session in recent context is a duplicate.
	body := medicationBody("Benazepril")
	body["recent_sessions"] = []map[string]any{{
		"id":         created["session_id"],
		"owner_id":   "u1",
		"subject_id": "p1",
		"type":       "medication",
		"timestamp":  apiNow.Format(time.RFC3339),
		"medication": map[string]any{"name": "Benazepril", "dosage": 2.5, "unit": "mg"},
	}}

	rec = s.request(http.MethodPost, "/sessions", body)
	require.Equal(s.T(), http.StatusConflict, rec.Code)

	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	s.NotNil(resp["conflict"])
}

func (s *ServiceSuite) TestOfflineWriteIsQueued() {
	s.remote.SetOffline(true)

	rec := s.request(http.MethodPost, "/sessions", medicationBody("Benazepril"))
	require.Equal(s.T(), http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(true, resp["queued"])

	status := s.request(http.MethodGet, "/queue/status", nil)
	require.Equal(s.T(), http.StatusOK, status.Code)

	var queueResp map[string]any
	require.NoError(s.T(), json.Unmarshal(status.Body.Bytes(), &queueResp))
	s.Equal(1.0, queueResp["size"])
}

func (s *ServiceSuite) TestDrainAfterReconnect() {
	s.remote.SetOffline(true)
	rec := s.request(http.MethodPost, "/sessions", medicationBody("Benazepril"))
	require.Equal(s.T(), http.StatusAccepted, rec.Code)

	s.remote.SetOffline(false)
	drain := s.request(http.MethodPost, "/queue/drain", nil)
	require.Equal(s.T(), http.StatusOK, drain.Code)

	var result map[string]any
	require.NoError(s.T(), json.Unmarshal(drain.Body.Bytes(), &result))
	s.Equal(1.0, result["replayed"])
	s.Equal(1, s.remote.SessionCount())
}

func (s *ServiceSuite) TestTodaySummaryAfterWrite() {
	rec := s.request(http.MethodPost, "/sessions", map[string]any{
		"owner_id":   "u1",
		"subject_id": "p1",
		"type":       "fluid",
		"timestamp":  apiNow.Format(time.RFC3339),
		"fluid":      map[string]any{"volume_ml": 100, "injection_site": "left flank"},
	})
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	summary := s.request(http.MethodGet, "/summary/today?owner_id=u1&subject_id=p1", nil)
	require.Equal(s.T(), http.StatusOK, summary.Code)

	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(summary.Body.Bytes(), &resp))
	s.Equal(1.0, resp["fluid_session_count"])
	s.Equal(100.0, resp["total_fluid_volume_given"])
}

func (s *ServiceSuite) TestTodaySummaryMissIs404() {
	rec := s.request(http.MethodGet, "/summary/today?owner_id=u1&subject_id=p1", nil)
	require.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *ServiceSuite) TestDeleteSession() {
	rec := s.request(http.MethodPost, "/sessions", medicationBody("Benazepril"))
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["session_id"].(string)

	body := medicationBody("Benazepril")
	del := s.request(http.MethodDelete, fmt.Sprintf("/sessions/%s", id), body)
	require.Equal(s.T(), http.StatusNoContent, del.Code)
	s.Zero(s.remote.SessionCount())
}

func (s *ServiceSuite) TestMalformedBodyIsBadRequest() {
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	s.service.Router().ServeHTTP(rec, req)
	require.Equal(s.T(), http.StatusBadRequest, rec.Code)
}
