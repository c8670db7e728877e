package prospect

import (
	"context"
	"time"

	"github.com/google/uuid"

	"prospect-portal/internal/models"
)

// Repository loads and saves whole prospect aggregates. Save overwrites the
// stored aggregate unconditionally (last write wins).
type Repository interface {
	Load(ctx context.Context, id string) (models.Prospect, error)
	Save(ctx context.Context, p models.Prospect) error
	List(ctx context.Context) ([]models.Prospect, error)
	Delete(ctx context.Context, id string) error
}

// Clock is the current-time source
type Clock interface {
	Now() time.Time
}

// IDGenerator hands out identities for new sub-entities
type IDGenerator interface {
	NewID() string
}

// Indexer keeps a search index in sync with saved prospects
type Indexer interface {
	IndexProspect(ctx context.Context, p models.Prospect) error
	RemoveProspect(ctx context.Context, id string) error
}

// ChangeRecorder is told about every price history change
type ChangeRecorder interface {
	RecordPriceChange(ctx context.Context, prospectID, source string, before, after []models.PriceEntry) error
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// UUIDGenerator returns random UUIDv4 strings
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }
