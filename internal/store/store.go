// Package store persists permit documents.
//
// A permit is always loaded and saved whole; adapters never patch part of a
// document. Relational adapters keep the JSON document in one column and copy
// a handful of fields (status, site, creation time, template flag) into
// indexed columns so List can filter without decoding every row.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/harrison/ptw/internal/models"
)

// ErrNotFound is returned by Load and Delete for unknown permit ids.
var ErrNotFound = errors.New("permit not found")

// Repository is the persistence port used by the CLI and the watcher.
type Repository interface {
	Save(ctx context.Context, p *models.Permit) error
	Load(ctx context.Context, id string) (*models.Permit, error)
	List(ctx context.Context, f Filter) ([]*models.Permit, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Filter narrows List. Zero fields match everything. Templates selects
// templates instead of live permits. Requires keeps permits that require the
// named specialized questionnaire; it is not indexed, so relational adapters
// apply it after decoding.
type Filter struct {
	SiteID    string
	Status    models.Status
	From      time.Time
	To        time.Time
	Templates bool
	Requires  string
}

// Match reports whether p passes the filter. From and To bound CreatedAt
// inclusively.
func (f Filter) Match(p *models.Permit) bool {
	if p.IsTemplate != f.Templates {
		return false
	}
	if f.SiteID != "" && p.SiteID != f.SiteID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && p.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && p.CreatedAt.After(f.To) {
		return false
	}
	if f.Requires != "" && !p.IsRequired(f.Requires) {
		return false
	}
	return true
}

// sortNewestFirst orders permits by creation time descending, ties by id.
func sortNewestFirst(ps []*models.Permit) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.After(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
