package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"splpulse/internal/models"
)

type fakeRepo struct {
	latest  []models.LatestState
	total   int
	history []models.HistoryEntry
}

func (r *fakeRepo) ListLatest(ctx context.Context, offset, limit int) ([]models.LatestState, int, error) {
	return r.latest, r.total, nil
}
func (r *fakeRepo) HistoryInRange(ctx context.Context, mint string, from, to time.Time, cap int) ([]models.HistoryEntry, error) {
	return r.history, nil
}

type fakeDB struct{ fail bool }

func (d *fakeDB) Ping(ctx context.Context) error {
	if d.fail {
		return context.DeadlineExceeded
	}
	return nil
}

type fakeEng struct {
	current *models.PriceSnapshot
	fresh   models.PriceSnapshot
}

func (e *fakeEng) CurrentOf(ctx context.Context, mint string) (*models.PriceSnapshot, error) {
	return e.current, nil
}
func (e *fakeEng) UpdateMint(ctx context.Context, mint string) (models.PriceSnapshot, error) {
	return e.fresh, nil
}

type fakeHolder struct{ holders []models.HolderBalance }

func (h *fakeHolder) ReadTopHolders(ctx context.Context, mint string, limit int) ([]models.HolderBalance, error) {
	return h.holders, nil
}

type fakeRisk struct{ report *models.RiskReport }

func (r *fakeRisk) Report(ctx context.Context, mint string) (*models.RiskReport, error) {
	return r.report, nil
}

type fakeJobs struct {
	banned     []string
	enrolled   []string
	bootstrapped bool
}

func (j *fakeJobs) Enrol(ctx context.Context, mint string) error {
	j.enrolled = append(j.enrolled, mint)
	return nil
}
func (j *fakeJobs) BanAndRemove(ctx context.Context, mint string) {
	j.banned = append(j.banned, mint)
}
func (j *fakeJobs) Bootstrap(ctx context.Context) error {
	j.bootstrapped = true
	return nil
}

type fakeHub struct{}

func (h *fakeHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newTestServer(adminSecret string) (*Server, *fakeRepo, *fakeEng, *fakeJobs) {
	repo := &fakeRepo{}
	eng := &fakeEng{}
	jobs := &fakeJobs{}
	s := NewServer(repo, &fakeDB{}, eng, &fakeHolder{}, &fakeRisk{}, jobs, &fakeHub{}, adminSecret, "0")
	return s, repo, eng, jobs
}

func TestHandleHealth_ReportsUpWhenDatabaseReachable(t *testing.T) {
	s, _, _, _ := newTestServer("")
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %+v", body)
	}
}

func TestHandleHealth_ReportsUnhealthyWhenDatabaseDown(t *testing.T) {
	repo := &fakeRepo{}
	s := NewServer(repo, &fakeDB{fail: true}, &fakeEng{}, &fakeHolder{}, &fakeRisk{}, &fakeJobs{}, &fakeHub{}, "", "0")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleListTokens_RejectsOutOfRangeLimit(t *testing.T) {
	s, _, _, _ := newTestServer("")
	req := httptest.NewRequest("GET", "/api/tokens?limit=500", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListTokens_ReturnsDataAndPagination(t *testing.T) {
	s, repo, _, _ := newTestServer("")
	repo.latest = []models.LatestState{{Mint: "mintA"}}
	repo.total = 1

	req := httptest.NewRequest("GET", "/api/tokens", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	data, _ := body["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected one row, got %+v", body)
	}
}

func TestHandleTokenMetrics_AutoEnrolsWhenAbsent(t *testing.T) {
	s, _, eng, _ := newTestServer("")
	eng.fresh = models.PriceSnapshot{Mint: "mintA", PriceUsd: 7}

	req := httptest.NewRequest("GET", "/api/tokens/mintA/metrics", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body comprehensiveResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.PriceUsd != 7 {
		t.Fatalf("expected priceUsd 7, got %+v", body)
	}
}

func TestHandleTokenMetrics_ConcentrationRatioClampsAt100(t *testing.T) {
	repo := &fakeRepo{}
	eng := &fakeEng{current: &models.PriceSnapshot{Mint: "mintA"}}
	holder := &fakeHolder{holders: []models.HolderBalance{{SharePct: 60}, {SharePct: 60}}}
	s := NewServer(repo, &fakeDB{}, eng, holder, &fakeRisk{}, &fakeJobs{}, &fakeHub{}, "", "0")

	req := httptest.NewRequest("GET", "/api/tokens/mintA/metrics", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	var body comprehensiveResponse
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.ConcentrationRatio != 100 {
		t.Fatalf("expected concentrationRatio clamped to 100, got %v", body.ConcentrationRatio)
	}
}

func TestHandleHistory_RejectsInvalidWindow(t *testing.T) {
	s, _, _, _ := newTestServer("")
	req := httptest.NewRequest("GET", "/api/tokens/mintA/history?window=1y", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminRoutes_RequireBearerToken(t *testing.T) {
	s, _, _, _ := newTestServer("topsecret")
	req := httptest.NewRequest("POST", "/admin/tokens/mintA/ban", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminRoutes_AcceptsValidToken(t *testing.T) {
	secret := "topsecret"
	s, _, _, jobs := newTestServer(secret)

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": "operator"})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	req := httptest.NewRequest("POST", "/admin/tokens/mintA/ban", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(jobs.banned) != 1 || jobs.banned[0] != "mintA" {
		t.Fatalf("expected mintA to be banned, got %v", jobs.banned)
	}
}

func TestAdminRoutes_DisabledWithoutSecret(t *testing.T) {
	s, _, _, _ := newTestServer("")
	req := httptest.NewRequest("POST", "/admin/bootstrap", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
