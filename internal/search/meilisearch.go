package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
)

// IndexName is the Meilisearch index holding prospect documents
const IndexName = "prospects"

// SearchClient keeps the prospects index in sync and queries it
type SearchClient struct {
	client *meilisearch.Client
	index  string
	logger *zap.Logger
}

func NewSearchClient(host, apiKey string, logger *zap.Logger) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SearchClient{
		client: client,
		index:  IndexName,
		logger: logger.With(zap.String("component", "search")),
	}
}

// Document is the searchable projection of a prospect
type Document struct {
	ID           string        `json:"id"`
	Nickname     string        `json:"nickname"`
	Location     string        `json:"location,omitempty"`
	Note         string        `json:"note,omitempty"`
	Status       models.Status `json:"status"`
	Closed       bool          `json:"closed"`
	Domains      []string      `json:"domains"`
	Traits       []string      `json:"traits"`
	CurrentPrice *float64      `json:"current_price,omitempty"`
	CreatedAt    int64         `json:"created_at"`
	UpdatedAt    int64         `json:"updated_at"`
}

// NewDocument projects a prospect into its index document
func NewDocument(p models.Prospect) Document {
	doc := Document{
		ID:        p.ID,
		Nickname:  p.Nickname,
		Location:  p.Location,
		Note:      p.Note,
		Status:    p.Status,
		Closed:    p.Status.IsClosed(),
		Domains:   []string{},
		Traits:    []string{},
		CreatedAt: p.CreatedAt.Unix(),
		UpdatedAt: p.UpdatedAt.Unix(),
	}
	if current, ok := pricing.CurrentPrice(p.PriceHistory); ok {
		doc.CurrentPrice = &current
	}
	for _, l := range p.Links {
		if l.Domain != "" && !contains(doc.Domains, l.Domain) {
			doc.Domains = append(doc.Domains, l.Domain)
		}
	}
	for _, t := range p.Traits {
		doc.Traits = append(doc.Traits, t.Text)
	}
	return doc
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	if err != nil && !strings.Contains(err.Error(), "index_already_exists") {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"nickname",
		"location",
		"note",
		"traits",
		"domains",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"status",
		"closed",
		"domains",
		"current_price",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"current_price",
		"created_at",
		"updated_at",
	})
	if err != nil {
		return err
	}

	return nil
}

// IndexProspect adds or replaces the document of one prospect
func (s *SearchClient) IndexProspect(_ context.Context, p models.Prospect) error {
	_, err := s.client.Index(s.index).AddDocuments([]Document{NewDocument(p)}, "id")
	return err
}

// IndexProspects reindexes a batch, used at startup
func (s *SearchClient) IndexProspects(_ context.Context, prospects []models.Prospect) error {
	if len(prospects) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(prospects))
	for _, p := range prospects {
		docs = append(docs, NewDocument(p))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs, "id")
	if err == nil {
		s.logger.Info("prospects indexed", zap.Int("count", len(docs)))
	}
	return err
}

// RemoveProspect deletes the document of one prospect
func (s *SearchClient) RemoveProspect(_ context.Context, id string) error {
	_, err := s.client.Index(s.index).DeleteDocument(id)
	return err
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []Document     `json:"hits"`
	TotalHits      int64          `json:"total_hits"`
	Facets         map[string]any `json:"facets,omitempty"`
	ProcessingTime int64          `json:"processing_time_ms"`
}

// parseHits converts raw hits through JSON into documents, skipping any
// that do not decode
func parseHits(hits []interface{}) []Document {
	docs := make([]Document, 0, len(hits))
	for _, hit := range hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			continue
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}
