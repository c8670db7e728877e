package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"prospect-portal/internal/models"
)

// Sort keys accepted by FilterSearch
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
	SortUpdated   = "updated"
)

var sortFields = map[string]string{
	SortPriceAsc:  "current_price:asc",
	SortPriceDesc: "current_price:desc",
	SortNewest:    "created_at:desc",
	SortUpdated:   "updated_at:desc",
}

type FilterParams struct {
	Query         string
	Statuses      []models.Status
	Domain        string
	MinPrice      *float64
	MaxPrice      *float64
	IncludeClosed bool
	SortBy        string
	Limit         int64
	Offset        int64
}

// BuildFilter renders params as a Meilisearch filter expression. Closed
// prospects are excluded unless asked for or a status filter is given.
func BuildFilter(params FilterParams) string {
	var filters []string

	if len(params.Statuses) > 0 {
		statusFilters := make([]string, len(params.Statuses))
		for i, status := range params.Statuses {
			statusFilters[i] = fmt.Sprintf("status = %s", quote(string(status)))
		}
		filters = append(filters, fmt.Sprintf("(%s)", strings.Join(statusFilters, " OR ")))
	} else if !params.IncludeClosed {
		filters = append(filters, "closed = false")
	}

	if params.Domain != "" {
		filters = append(filters, fmt.Sprintf("domains = %s", quote(params.Domain)))
	}

	// Price range filter
	if params.MinPrice != nil {
		filters = append(filters, "current_price >= "+formatNumber(*params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, "current_price <= "+formatNumber(*params.MaxPrice))
	}

	return strings.Join(filters, " AND ")
}

// BuildSort maps a sort key to Meilisearch sort rules; unknown keys keep
// relevance order
func BuildSort(sortBy string) []string {
	if field, ok := sortFields[sortBy]; ok {
		return []string{field}
	}
	return nil
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(v string) string {
	return `"` + quoteReplacer.Replace(v) + `"`
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FacetFields are counted on every filtered search
var FacetFields = []string{"status", "domains"}

// BuildSearchRequest turns params into a Meilisearch request with the
// default page size applied
func BuildSearchRequest(params FilterParams) *meilisearch.SearchRequest {
	limit := params.Limit
	if limit == 0 {
		limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  limit,
		Offset: params.Offset,
		Facets: FacetFields,
	}
	if filter := BuildFilter(params); filter != "" {
		searchReq.Filter = filter
	}
	if sort := BuildSort(params.SortBy); len(sort) > 0 {
		searchReq.Sort = sort
	}
	return searchReq
}

// FilterSearch runs a filtered full-text search over prospects
func (s *SearchClient) FilterSearch(_ context.Context, params FilterParams) (*SearchResult, error) {
	searchRes, err := s.client.Index(s.index).Search(params.Query, BuildSearchRequest(params))
	if err != nil {
		return nil, err
	}

	var facets map[string]any
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	return &SearchResult{
		Hits:           parseHits(searchRes.Hits),
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}
