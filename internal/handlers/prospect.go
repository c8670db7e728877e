package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prospect-portal/internal/guidance"
	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
	"prospect-portal/internal/prospect"
	"prospect-portal/internal/search"
	"prospect-portal/internal/visit"
)

// Searcher runs full-text prospect searches
type Searcher interface {
	FilterSearch(ctx context.Context, params search.FilterParams) (*search.SearchResult, error)
}

// ProspectHandler serves the prospect API
type ProspectHandler struct {
	service  *prospect.Service
	searcher Searcher
	logger   *zap.Logger
}

// NewProspectHandler creates a new prospect handler. searcher may be nil
// when search is disabled.
func NewProspectHandler(service *prospect.Service, searcher Searcher, logger *zap.Logger) *ProspectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProspectHandler{
		service:  service,
		searcher: searcher,
		logger:   logger.With(zap.String("component", "handlers")),
	}
}

// Register mounts the prospect routes on api. write is applied to every
// mutating route.
func (h *ProspectHandler) Register(api *gin.RouterGroup, write ...gin.HandlerFunc) {
	w := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), handler)
	}

	api.GET("/prospects", h.List)
	api.POST("/prospects", w(h.Create)...)
	api.GET("/prospects/:id", h.Get)
	api.PUT("/prospects/:id", w(h.Replace)...)
	api.DELETE("/prospects/:id", w(h.Delete)...)

	api.PATCH("/prospects/:id/header", w(h.UpdateHeader)...)
	api.PATCH("/prospects/:id/note", w(h.UpdateNote)...)
	api.PATCH("/prospects/:id/status", w(h.SetStatus)...)
	api.PUT("/prospects/:id/details", w(h.UpdateDetails)...)

	api.POST("/prospects/:id/prices", w(h.AddPrice)...)
	api.GET("/prospects/:id/prices/check", h.CheckPrice)
	api.POST("/prospects/:id/links", w(h.AddLink)...)
	api.DELETE("/prospects/:id/links/:linkId", w(h.DeleteLink)...)
	api.POST("/prospects/:id/traits", w(h.AddTrait)...)
	api.DELETE("/prospects/:id/traits/:traitId", w(h.DeleteTrait)...)

	api.POST("/prospects/:id/visits", w(h.SaveVisit)...)
	api.PUT("/prospects/:id/visits/:visitId", w(h.SaveVisit)...)
	api.DELETE("/prospects/:id/visits/:visitId", w(h.DeleteVisit)...)
	api.POST("/prospects/:id/visits/wizard", w(h.RecordWizardVisit)...)
	api.GET("/visit-wizard/questions", h.WizardQuestions)

	api.GET("/prospects/:id/guidance", h.Guidance)
	api.POST("/prospects/:id/guidance/apply", w(h.ApplyGuidance)...)
	api.POST("/prospects/:id/quick-action", w(h.QuickAction)...)

	api.GET("/compare", h.Compare)
	api.GET("/duplicates", h.Duplicates)
	api.GET("/search", h.Search)
}

// ProspectView is the detail page payload
type ProspectView struct {
	Prospect *models.Prospect `json:"prospect"`
	Guidance *guidance.Result `json:"guidance"`
	Price    pricing.Summary  `json:"price"`
	Pros     []models.Trait   `json:"pros"`
	Cons     []models.Trait   `json:"cons"`
}

func newView(p *models.Prospect) ProspectView {
	return ProspectView{
		Prospect: p,
		Guidance: guidance.Compute(*p),
		Price:    pricing.Summarize(p.PriceHistory),
		Pros:     p.Pros(),
		Cons:     p.Cons(),
	}
}

func (h *ProspectHandler) respond(c *gin.Context, status int, p *models.Prospect, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, newView(p))
}

// List returns the dashboard for ?filter=active|archived|all
func (h *ProspectHandler) List(c *gin.Context) {
	dashboard, err := h.service.Dashboard(c.Request.Context(), prospect.ParseFilter(c.Query("filter")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *ProspectHandler) Create(c *gin.Context) {
	var req models.CreateProspect
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.Create(c.Request.Context(), req)
	h.respond(c, http.StatusCreated, p, err)
}

func (h *ProspectHandler) Get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, p, err)
}

// Replace overwrites the whole aggregate with the request body
func (h *ProspectHandler) Replace(c *gin.Context) {
	var req models.Prospect
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ID = c.Param("id")
	p, err := h.service.Update(c.Request.Context(), req)
	h.respond(c, http.StatusOK, p, err)
}

func (h *ProspectHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProspectHandler) UpdateHeader(c *gin.Context) {
	var req struct {
		Nickname string `json:"nickname" binding:"required"`
		Location string `json:"location"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.UpdateHeader(c.Request.Context(), c.Param("id"), req.Nickname, req.Location)
	h.respond(c, http.StatusOK, p, err)
}

func (h *ProspectHandler) UpdateNote(c *gin.Context) {
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.UpdateNote(c.Request.Context(), c.Param("id"), req.Note)
	h.respond(c, http.StatusOK, p, err)
}

func (h *ProspectHandler) SetStatus(c *gin.Context) {
	var req struct {
		Status models.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	h.respond(c, http.StatusOK, p, err)
}

func (h *ProspectHandler) UpdateDetails(c *gin.Context) {
	var req models.PropertyDetail
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.UpdateDetails(c.Request.Context(), c.Param("id"), req)
	h.respond(c, http.StatusOK, p, err)
}

// AddPrice records {amount, date}; both are required
func (h *ProspectHandler) AddPrice(c *gin.Context) {
	var req struct {
		Amount *float64 `json:"amount"`
		Date   string   `json:"date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.AddPrice(c.Request.Context(), c.Param("id"), req.Amount, req.Date)
	h.respond(c, http.StatusOK, p, err)
}

// CheckPrice tells the price form whether a submission for ?date= corrects
// an existing entry
func (h *ProspectHandler) CheckPrice(c *gin.Context) {
	date := c.Query("date")
	exists, err := h.service.HasPriceOn(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "exists": exists})
}

func (h *ProspectHandler) AddLink(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.AddLink(c.Request.Context(), c.Param("id"), req.URL)
	h.respond(c, http.StatusCreated, p, err)
}

func (h *ProspectHandler) DeleteLink(c *gin.Context) {
	p, err := h.service.DeleteLink(c.Request.Context(), c.Param("id"), c.Param("linkId"))
	h.respond(c, http.StatusOK, p, err)
}

func (h *ProspectHandler) AddTrait(c *gin.Context) {
	var req struct {
		Text      string           `json:"text" binding:"required"`
		Sentiment models.Sentiment `json:"sentiment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.AddTrait(c.Request.Context(), c.Param("id"), req.Text, req.Sentiment)
	h.respond(c, http.StatusCreated, p, err)
}

func (h *ProspectHandler) DeleteTrait(c *gin.Context) {
	p, err := h.service.DeleteTrait(c.Request.Context(), c.Param("id"), c.Param("traitId"))
	h.respond(c, http.StatusOK, p, err)
}

// SaveVisit inserts a visit, or replaces the one named by :visitId
func (h *ProspectHandler) SaveVisit(c *gin.Context) {
	var req models.Visit
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if visitID := c.Param("visitId"); visitID != "" {
		req.ID = visitID
	}
	status := http.StatusCreated
	if req.ID != "" {
		status = http.StatusOK
	}
	p, err := h.service.SaveVisit(c.Request.Context(), c.Param("id"), req)
	h.respond(c, status, p, err)
}

func (h *ProspectHandler) DeleteVisit(c *gin.Context) {
	p, err := h.service.DeleteVisit(c.Request.Context(), c.Param("id"), c.Param("visitId"))
	h.respond(c, http.StatusOK, p, err)
}

// RecordWizardVisit saves a visit from wizard answers, or a bare schedule
// when no answers are sent
func (h *ProspectHandler) RecordWizardVisit(c *gin.Context) {
	var req visit.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.RecordWizardVisit(c.Request.Context(), c.Param("id"), req)
	h.respond(c, http.StatusCreated, p, err)
}

func (h *ProspectHandler) WizardQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"questions":    visit.Questions,
		"default_time": visit.DefaultTime,
	})
}

// Guidance returns the suggestion, or null when no rule applies
func (h *ProspectHandler) Guidance(c *gin.Context) {
	res, err := h.service.Guidance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guidance": res})
}

// ApplyGuidance runs the current suggestion. Mutations are applied here;
// navigation and modals are returned for the client to follow.
func (h *ProspectHandler) ApplyGuidance(c *gin.Context) {
	p, res, applied, err := h.service.ApplyGuidance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"applied":  applied,
		"guidance": res,
		"prospect": newView(p),
	})
}

func (h *ProspectHandler) QuickAction(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.QuickAction(c.Request.Context(), c.Param("id"), req.Action)
	h.respond(c, http.StatusOK, p, err)
}

func (h *ProspectHandler) Compare(c *gin.Context) {
	rows, err := h.service.Compare(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prospects": rows, "count": len(rows)})
}

// Duplicates checks ?link= and ?nickname= against existing prospects
func (h *ProspectHandler) Duplicates(c *gin.Context) {
	ctx := c.Request.Context()
	out := gin.H{"link": nil, "nickname": nil}

	if link := c.Query("link"); link != "" {
		p, err := h.service.CheckDuplicateLink(ctx, link)
		if err != nil {
			respondError(c, err)
			return
		}
		if p != nil {
			out["link"] = gin.H{"id": p.ID, "nickname": p.Nickname}
		}
	}
	if nickname := c.Query("nickname"); nickname != "" {
		p, err := h.service.CheckDuplicateNickname(ctx, nickname)
		if err != nil {
			respondError(c, err)
			return
		}
		if p != nil {
			out["nickname"] = gin.H{"id": p.ID, "nickname": p.Nickname}
		}
	}
	c.JSON(http.StatusOK, out)
}

// Search queries the search index
// ?q=&status=Visited,Interesting&domain=&min_price=&max_price=&include_closed=&sort=&limit=
func (h *ProspectHandler) Search(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not available"})
		return
	}

	params := search.FilterParams{
		Query:         c.Query("q"),
		Domain:        c.Query("domain"),
		IncludeClosed: c.Query("include_closed") == "true",
		SortBy:        c.Query("sort"),
		Limit:         int64(queryInt(c, "limit", 20)),
		Offset:        int64(queryInt(c, "offset", 0)),
	}
	for _, raw := range strings.Split(c.Query("status"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		status, ok := models.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + raw})
			return
		}
		params.Statuses = append(params.Statuses, status)
	}

	var err error
	if params.MinPrice, err = queryFloat(c, "min_price"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_price"})
		return
	}
	if params.MaxPrice, err = queryFloat(c, "max_price"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_price"})
		return
	}

	start := time.Now()
	result, err := h.searcher.FilterSearch(c.Request.Context(), params)
	if err != nil {
		h.logger.Error("search failed", zap.String("query", params.Query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Debug("search", zap.String("query", params.Query), zap.Duration("took", time.Since(start)))
	c.JSON(http.StatusOK, result)
}
