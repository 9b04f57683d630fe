// Package store persists offers, correction events, SKU overrides and
// categories behind a backend-agnostic interface. The layout mirrors a
// partitioned table store: offers are keyed by (partition key, row key)
// and writes are replace-on-conflict upserts.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dealscanner/deals-cli/internal/model"
)

// ErrNotFound is returned when an identity does not resolve to a stored
// record. Callers use IsNotFound rather than comparing directly.
var ErrNotFound = eris.New("not found")

// IsNotFound reports whether err stems from a missing record.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

// OfferFilter specifies criteria for listing offers.
type OfferFilter struct {
	Retailer string            `json:"retailer,omitempty"`
	Category string            `json:"category,omitempty"`
	Status   model.OfferStatus `json:"status,omitempty"`
	ValidOn  *time.Time        `json:"valid_on,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// Store defines the persistence interface for the deals backend.
type Store interface {
	// Offers. UpsertOffer replaces on key conflict, preserving the
	// original created_at; GetOffer returns ErrNotFound for unknown
	// identities.
	UpsertOffer(ctx context.Context, offer *model.Offer) error
	GetOffer(ctx context.Context, partitionKey, rowKey string) (*model.Offer, error)
	ListOffers(ctx context.Context, filter OfferFilter) ([]model.Offer, error)

	// Correction events are append-only; ListCorrections returns
	// newest first.
	AppendCorrection(ctx context.Context, event *model.CorrectionEvent) error
	ListCorrections(ctx context.Context, partitionKey, rowKey string) ([]model.CorrectionEvent, error)

	// SKU overrides, unique per (retailer, kind, sku key).
	UpsertOverride(ctx context.Context, override *model.SkuOverride) error
	ListOverrides(ctx context.Context, retailer string, includeInactive bool) ([]model.SkuOverride, error)
	DeactivateOverride(ctx context.Context, id string) error

	// Categories.
	UpsertCategory(ctx context.Context, category *model.Category) error
	ListCategories(ctx context.Context, activeOnly bool) ([]model.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
