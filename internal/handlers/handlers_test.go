package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospect-portal/internal/cleanup"
	"prospect-portal/internal/database"
	"prospect-portal/internal/guidance"
	"prospect-portal/internal/models"
	"prospect-portal/internal/prospect"
	"prospect-portal/internal/ratelimit"
	"prospect-portal/internal/scheduler"
	"prospect-portal/internal/search"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

type fakeSearcher struct {
	params search.FilterParams
	err    error
}

func (f *fakeSearcher) FilterSearch(_ context.Context, params search.FilterParams) (*search.SearchResult, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &search.SearchResult{Hits: []search.Document{{ID: "p1", Nickname: "Flat"}}, TotalHits: 1}, nil
}

type testServer struct {
	router   *gin.Engine
	service  *prospect.Service
	searcher *fakeSearcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := prospect.NewService(database.NewMemoryRepository(), nil, prospect.WithClock(fixedClock{now}))
	searcher := &fakeSearcher{}

	r := gin.New()
	api := r.Group("/api")
	NewProspectHandler(svc, searcher, nil).Register(api)
	return &testServer{router: r, service: svc, searcher: searcher}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type guidanceResponse struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
}

type viewResponse struct {
	Prospect models.Prospect   `json:"prospect"`
	Guidance *guidanceResponse `json:"guidance"`
	Price    struct {
		Current         *float64 `json:"current"`
		DeltaVsPrevious *float64 `json:"delta_vs_previous"`
	} `json:"price"`
}

type dashboardResponse struct {
	ActiveCount   int `json:"active_count"`
	ArchivedCount int `json:"archived_count"`
	Cards         []struct {
		ID       string            `json:"id"`
		Guidance *guidanceResponse `json:"guidance"`
	} `json:"cards"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) create(t *testing.T, body map[string]any) models.Prospect {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/prospects", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[viewResponse](t, w).Prospect
}

func TestCreateAndGetProspect(t *testing.T) {
	s := newTestServer(t)

	p := s.create(t, map[string]any{"nickname": "Sunny flat", "initial_price": 300000, "initial_link": "idealista.pt/1"})
	assert.Equal(t, "Sunny flat", p.Nickname)
	assert.Equal(t, models.StatusUnderReview, p.Status)

	w := s.do(t, http.MethodGet, "/api/prospects/"+p.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[viewResponse](t, w)
	assert.Equal(t, p.ID, view.Prospect.ID)
	require.NotNil(t, view.Guidance)
	assert.Equal(t, guidance.RuleMissingDetails, view.Guidance.RuleID)
	require.NotNil(t, view.Price.Current)
	assert.Equal(t, 300000.0, *view.Price.Current)
	assert.Len(t, view.Prospect.Links, 1)
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/prospects", map[string]any{"location": "Lisbon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/prospects", map[string]any{"nickname": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/prospects/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/prospects/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		s.do(t, http.MethodPatch, "/api/prospects/missing/status", map[string]any{"status": "Visited"}).Code)
}

func TestAddPrice(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Flat"})

	w := s.do(t, http.MethodPost, "/api/prospects/"+p.ID+"/prices", map[string]any{"amount": 300000, "date": "2024-01-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/prospects/"+p.ID+"/prices", map[string]any{"amount": 280000, "date": "2024-02-01"})
	require.Equal(t, http.StatusOK, w.Code)

	view := decode[viewResponse](t, w)
	assert.Len(t, view.Prospect.PriceHistory, 2)
	assert.Equal(t, 280000.0, *view.Price.Current)
	assert.Equal(t, -20000.0, *view.Price.DeltaVsPrevious)

	w = s.do(t, http.MethodPost, "/api/prospects/"+p.ID+"/prices", map[string]any{"date": "2024-03-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/prospects/"+p.ID+"/prices", map[string]any{"amount": 1000, "date": "01/03/2024"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckPrice(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Flat"})
	w := s.do(t, http.MethodPost, "/api/prospects/"+p.ID+"/prices", map[string]any{"amount": 300000, "date": "2024-01-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	type checkResponse struct {
		Date   string `json:"date"`
		Exists bool   `json:"exists"`
	}

	w = s.do(t, http.MethodGet, "/api/prospects/"+p.ID+"/prices/check?date=2024-01-01", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, checkResponse{Date: "2024-01-01", Exists: true}, decode[checkResponse](t, w))

	w = s.do(t, http.MethodGet, "/api/prospects/"+p.ID+"/prices/check?date=2024-01-02", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[checkResponse](t, w).Exists)

	w = s.do(t, http.MethodGet, "/api/prospects/"+p.ID+"/prices/check?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/prospects/"+p.ID+"/prices/check", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/prospects/missing/prices/check?date=2024-01-01", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusAndQuickAction(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Flat"})

	w := s.do(t, http.MethodPatch, "/api/prospects/"+p.ID+"/status", map[string]any{"status": "Sold"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/prospects/"+p.ID+"/quick-action", map[string]any{"action": "archive"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusArchived, decode[viewResponse](t, w).Prospect.Status)

	w = s.do(t, http.MethodGet, "/api/prospects?filter=archived", nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[dashboardResponse](t, w)
	assert.Equal(t, 1, d.ArchivedCount)
	require.Len(t, d.Cards, 1)
	assert.Equal(t, guidance.RuleMissingDetails, d.Cards[0].Guidance.RuleID)

	w = s.do(t, http.MethodGet, "/api/prospects", nil)
	d = decode[dashboardResponse](t, w)
	assert.Equal(t, 0, d.ActiveCount)
	assert.Empty(t, d.Cards)
}

func TestLinksTraitsAndVisits(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Flat"})
	base := "/api/prospects/" + p.ID

	w := s.do(t, http.MethodPost, base+"/links", map[string]any{"url": "www.imovirtual.com/x"})
	require.Equal(t, http.StatusCreated, w.Code)
	link := decode[viewResponse](t, w).Prospect.Links[0]
	assert.Equal(t, "imovirtual.com", link.Domain)

	w = s.do(t, http.MethodDelete, base+"/links/"+link.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[viewResponse](t, w).Prospect.Links)

	w = s.do(t, http.MethodPost, base+"/traits", map[string]any{"text": "Balcony", "sentiment": "Positive"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, base+"/traits", map[string]any{"text": "Dark", "sentiment": "Meh"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/visits/wizard", map[string]any{
		"date":    "2024-04-05",
		"answers": map[string]any{"unit_light": false},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v := decode[viewResponse](t, w).Prospect.Visits[0]
	assert.Equal(t, "Is there plenty of natural light?: No", v.Notes.Unit)
	assert.Equal(t, 10, v.Date.Hour())

	w = s.do(t, http.MethodPut, base+"/visits/"+v.ID, map[string]any{"date": "2024-04-06T18:00:00Z", "general_note": "moved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	visits := decode[viewResponse](t, w).Prospect.Visits
	require.Len(t, visits, 1)
	assert.Equal(t, "moved", visits[0].GeneralNote)

	w = s.do(t, http.MethodDelete, base+"/visits/"+v.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[viewResponse](t, w).Prospect.Visits)
}

func TestGuidanceEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Flat"})
	base := "/api/prospects/" + p.ID

	w := s.do(t, http.MethodPut, base+"/details", map[string]any{"rooms": 2})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPatch, base+"/status", map[string]any{"status": "Interesting"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, base+"/guidance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rule_id":"decision_pending"`)

	w = s.do(t, http.MethodPost, base+"/guidance/apply", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var applied struct {
		Applied  bool         `json:"applied"`
		Prospect viewResponse `json:"prospect"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &applied))
	assert.True(t, applied.Applied)
	assert.Equal(t, models.StatusDecisionPending, applied.Prospect.Prospect.Status)
	assert.Nil(t, applied.Prospect.Guidance)

	w = s.do(t, http.MethodGet, base+"/guidance", nil)
	assert.JSONEq(t, `{"guidance":null}`, w.Body.String())
}

func TestReplaceProspect(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Flat"})

	p.Nickname = "Renamed"
	p.Note = "whole aggregate"
	w := s.do(t, http.MethodPut, "/api/prospects/"+p.ID, p)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[viewResponse](t, w).Prospect
	assert.Equal(t, "Renamed", got.Nickname)
	assert.Equal(t, "whole aggregate", got.Note)
}

func TestReplaceProspectRejectsTwoPricesOnOneDay(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Flat", "initial_price": 300000})

	day := p.PriceHistory[0].EffectiveAt
	p.PriceHistory = append(p.PriceHistory, models.PriceEntry{ID: "extra", Value: 290000, EffectiveAt: day.Add(15 * time.Hour)})
	w := s.do(t, http.MethodPut, "/api/prospects/"+p.ID, p)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/prospects/"+p.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[viewResponse](t, w).Prospect.PriceHistory, 1)
}

func TestCompareAndDuplicates(t *testing.T) {
	s := newTestServer(t)
	p := s.create(t, map[string]any{"nickname": "Sunny Flat", "initial_link": "idealista.pt/9"})
	closed := s.create(t, map[string]any{"nickname": "Old"})
	s.do(t, http.MethodPatch, "/api/prospects/"+closed.ID+"/status", map[string]any{"status": "Withdrawn"})

	w := s.do(t, http.MethodGet, "/api/compare", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cmp struct {
		Prospects []prospect.CompareRow `json:"prospects"`
		Count     int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cmp))
	assert.Equal(t, 1, cmp.Count)
	assert.Equal(t, p.ID, cmp.Prospects[0].ID)

	w = s.do(t, http.MethodGet, "/api/duplicates?link=idealista.pt/9&nickname=sunny%20flat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dup struct {
		Link     *struct{ ID string } `json:"link"`
		Nickname *struct{ ID string } `json:"nickname"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dup))
	require.NotNil(t, dup.Link)
	assert.Equal(t, p.ID, dup.Link.ID)
	require.NotNil(t, dup.Nickname)

	w = s.do(t, http.MethodGet, "/api/duplicates?nickname=other", nil)
	assert.JSONEq(t, `{"link":null,"nickname":null}`, w.Body.String())
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/search?q=flat&status=Visited,Interesting&min_price=100000&sort=price_asc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "flat", s.searcher.params.Query)
	assert.Equal(t, []models.Status{models.StatusVisited, models.StatusInteresting}, s.searcher.params.Statuses)
	require.NotNil(t, s.searcher.params.MinPrice)
	assert.Equal(t, 100000.0, *s.searcher.params.MinPrice)
	assert.Nil(t, s.searcher.params.MaxPrice)
	assert.Equal(t, int64(20), s.searcher.params.Limit)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/search?status=Sold", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/search?max_price=lots", nil).Code)

	s.searcher.err = errors.New("meili down")
	assert.Equal(t, http.StatusInternalServerError, s.do(t, http.MethodGet, "/api/search?q=x", nil).Code)
}

func TestSearchUnavailable(t *testing.T) {
	svc := prospect.NewService(database.NewMemoryRepository(), nil)
	r := gin.New()
	NewProspectHandler(svc, nil, nil).Register(r.Group("/api"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(2, 0, 0, true)
	r := gin.New()
	r.GET("/limited", RateLimitMiddleware(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/stats", RateLimitStats(limiter))

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(prospect.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(prospect.ErrInvalidStatus))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

type fakeWatcher struct {
	running bool
	runs    chan struct{}
}

func (f *fakeWatcher) RunOnce(context.Context) (*scheduler.WatchResult, error) {
	f.runs <- struct{}{}
	return &scheduler.WatchResult{}, nil
}

func (f *fakeWatcher) Running() bool { return f.running }

func (f *fakeWatcher) LastResult() *scheduler.WatchResult {
	return &scheduler.WatchResult{Checked: 4, Updated: []string{"p1"}}
}

type fakeCleaner struct {
	cfg cleanup.Config
}

func (f *fakeCleaner) PhysicallyDelete(_ context.Context, cfg cleanup.Config) (*cleanup.Result, error) {
	f.cfg = cfg
	return &cleanup.Result{DryRun: cfg.DryRun, DeletedProspects: []string{}}, nil
}

func (f *fakeCleaner) GetRecentDeleteLogs(context.Context, int) ([]models.DeleteLog, error) {
	return []models.DeleteLog{{ProspectID: "gone", Reason: models.DeleteReasonExpired}}, nil
}

func (f *fakeCleaner) GetDeleteStats(context.Context, int) (*cleanup.Stats, error) {
	return &cleanup.Stats{TotalDeleted: 1}, nil
}

func newAdminRouter(t *testing.T, deps AdminDeps) (*gin.Engine, *prospect.Service) {
	t.Helper()
	svc := prospect.NewService(database.NewMemoryRepository(), nil, prospect.WithClock(fixedClock{now}))
	r := gin.New()
	NewAdminHandler(svc, deps, nil).Register(r.Group("/api/admin"))
	return r, svc
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminWatch(t *testing.T) {
	watcher := &fakeWatcher{runs: make(chan struct{}, 1)}
	r, _ := newAdminRouter(t, AdminDeps{Watcher: watcher})

	w := serve(r, http.MethodPost, "/api/admin/watch/run", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-watcher.runs:
	case <-time.After(time.Second):
		t.Fatal("watch did not start")
	}

	w = serve(r, http.MethodGet, "/api/admin/watch/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"idle"`)
	assert.Contains(t, w.Body.String(), `"checked":4`)

	watcher.running = true
	w = serve(r, http.MethodPost, "/api/admin/watch/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminUnavailable(t *testing.T) {
	r, _ := newAdminRouter(t, AdminDeps{})

	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/api/admin/watch/run", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/api/admin/changes/recent", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/api/admin/cleanup/run", "").Code)
}

func TestAdminCleanupDefaultsToDryRun(t *testing.T) {
	cleaner := &fakeCleaner{}
	r, _ := newAdminRouter(t, AdminDeps{Cleaner: cleaner, CleanupCfg: cleanup.DefaultConfig()})

	w := serve(r, http.MethodPost, "/api/admin/cleanup/run", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, cleaner.cfg.DryRun)
	assert.Equal(t, 180, cleaner.cfg.RetentionDays)

	w = serve(r, http.MethodPost, "/api/admin/cleanup/run", `{"dry_run":false,"retention_days":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, cleaner.cfg.DryRun)
	assert.Equal(t, 30, cleaner.cfg.RetentionDays)

	w = serve(r, http.MethodGet, "/api/admin/cleanup/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestAdminStats(t *testing.T) {
	r, svc := newAdminRouter(t, AdminDeps{Cleaner: &fakeCleaner{}})
	ctx := context.Background()
	price := 320000.0
	_, err := svc.Create(ctx, models.CreateProspect{Nickname: "A", InitialPrice: &price})
	require.NoError(t, err)
	b, err := svc.Create(ctx, models.CreateProspect{Nickname: "B"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, b.ID, models.StatusArchived)
	require.NoError(t, err)

	w := serve(r, http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Prospects struct {
			Active   int `json:"active"`
			Archived int `json:"archived"`
			Total    int `json:"total"`
			Priced   int `json:"priced"`
		} `json:"prospects"`
		Deletions cleanup.Stats `json:"deletions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Prospects.Active)
	assert.Equal(t, 1, stats.Prospects.Archived)
	assert.Equal(t, 2, stats.Prospects.Total)
	assert.Equal(t, 1, stats.Prospects.Priced)
	assert.Equal(t, int64(1), stats.Deletions.TotalDeleted)

	w = serve(r, http.MethodGet, "/api/admin/price-distribution", "")
	require.Equal(t, http.StatusOK, w.Code)
	var dist struct {
		PriceDistribution []PriceRange `json:"price_distribution"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dist))
	assert.Equal(t, 1, dist.PriceDistribution[2].Count)
}
