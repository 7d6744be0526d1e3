// Package feedback persists quote feedback records.
package feedback

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/donizo/pricing-engine/internal/domain"
)

// Record is one stored feedback entry.
type Record struct {
	ID              string
	TaskID          string
	QuoteID         string
	UserType        string
	Verdict         string
	Comment         string
	TargetComponent string
	CreatedAt       time.Time
}

// Repo stores feedback records as hashes keyed by record id.
type Repo struct {
	client    rueidis.Client
	keyPrefix string
}

// New creates a feedback repository sharing the catalog store's client.
func New(client rueidis.Client, keyPrefix string) *Repo {
	return &Repo{client: client, keyPrefix: keyPrefix}
}

// Save persists one record.
func (r *Repo) Save(ctx context.Context, rec Record) error {
	key := r.keyPrefix + "feedback:" + rec.ID
	cmd := r.client.B().Hset().Key(key).FieldValue().
		FieldValue("task_id", rec.TaskID).
		FieldValue("quote_id", rec.QuoteID).
		FieldValue("user_type", rec.UserType).
		FieldValue("verdict", rec.Verdict).
		FieldValue("comment", rec.Comment).
		FieldValue("target_component", rec.TargetComponent).
		FieldValue("created_at", strconv.FormatInt(rec.CreatedAt.Unix(), 10)).
		Build()

	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("hset feedback %s: %w: %w", rec.ID, err, domain.ErrCatalogUnavailable)
	}
	return nil
}
