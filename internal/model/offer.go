// Package model defines the core entities of the deals backend: offers,
// correction events, SKU overrides, categories, and the inbound scan payloads.
package model

import (
	"fmt"
	"strings"
	"time"
)

// OfferStatus represents the lifecycle state of an offer.
type OfferStatus string

const (
	StatusNeedsReview   OfferStatus = "needs_review"
	StatusPublished     OfferStatus = "published"
	StatusDeleted       OfferStatus = "deleted"
	StatusLowConfidence OfferStatus = "low_confidence"
)

// ParseOfferStatus maps an external status string to the closed enum.
// Unknown or empty values map to StatusNeedsReview so that a scanner
// sending a bad status can never publish an offer by accident.
func ParseOfferStatus(s string) OfferStatus {
	switch OfferStatus(s) {
	case StatusPublished, StatusDeleted, StatusLowConfidence, StatusNeedsReview:
		return OfferStatus(s)
	default:
		return StatusNeedsReview
	}
}

// ParseScannerStatus maps a scanner-supplied status at ingest. Only
// published and low_confidence are accepted from the scanner; anything
// else, including lifecycle states like deleted that only review may
// set, needs review.
func ParseScannerStatus(s string) OfferStatus {
	switch OfferStatus(s) {
	case StatusPublished, StatusLowConfidence:
		return OfferStatus(s)
	default:
		return StatusNeedsReview
	}
}

// Valid reports whether the status is one of the known values.
func (s OfferStatus) Valid() bool {
	switch s {
	case StatusNeedsReview, StatusPublished, StatusDeleted, StatusLowConfidence:
		return true
	}
	return false
}

// ConfidenceBreakdown holds the per-signal confidence sub-scores
// produced by the upstream extraction step.
type ConfidenceBreakdown struct {
	Price        float64 `json:"price"`
	Detection    float64 `json:"detection"`
	Extraction   float64 `json:"extraction"`
	Amount       float64 `json:"amount"`
	Completeness float64 `json:"completeness"`
}

// Trace carries source-document context for human review.
type Trace struct {
	Page      int       `json:"page,omitempty"`
	BBox      []float64 `json:"bbox,omitempty"`
	TextLines []string  `json:"text_lines,omitempty"`
}

// Offer is the central entity: one deduplicated product offer for one
// retailer in one validity period. Identity is (PartitionKey, RowKey);
// re-ingesting the same retailer/period/product overwrites in place.
type Offer struct {
	PartitionKey string `json:"partition_key"`
	RowKey       string `json:"row_key"`

	Retailer   string    `json:"retailer"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidTo    time.Time `json:"valid_to"`
	SourceFile string    `json:"source_file,omitempty"`

	ProductTextRaw string `json:"product_text_raw"`
	BrandNorm      string `json:"brand_norm,omitempty"`
	ProductNorm    string `json:"product_norm,omitempty"`
	VariantNorm    string `json:"variant_norm,omitempty"`
	Category       string `json:"category,omitempty"`

	NetAmountValue float64 `json:"net_amount_value,omitempty"`
	NetAmountUnit  string  `json:"net_amount_unit,omitempty"`
	PackCount      int     `json:"pack_count,omitempty"`
	ContainerType  string  `json:"container_type,omitempty"`

	PriceValue       float64  `json:"price_value,omitempty"`
	DepositValue     float64  `json:"deposit_value,omitempty"`
	PriceExclDeposit float64  `json:"price_excl_deposit,omitempty"`
	UnitPriceValue   *float64 `json:"unit_price_value,omitempty"`
	UnitPriceUnit    string   `json:"unit_price_unit,omitempty"`

	SkuKey string `json:"sku_key,omitempty"`

	Confidence float64              `json:"confidence"`
	Breakdown  *ConfidenceBreakdown `json:"confidence_breakdown,omitempty"`

	Status       OfferStatus `json:"status"`
	ReviewedBy   string      `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time  `json:"reviewed_at,omitempty"`
	ReviewReason string      `json:"review_reason,omitempty"`
	Comment      string      `json:"comment,omitempty"`

	Trace *Trace `json:"trace,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ID returns the composite identity string used by batch operations.
func (o *Offer) ID() string {
	return o.PartitionKey + "|" + o.RowKey
}

// ValidOn reports whether the offer's validity window covers the date.
func (o *Offer) ValidOn(date time.Time) bool {
	return !date.Before(o.ValidFrom) && !date.After(o.ValidTo)
}

// PartitionKeyFor builds the storage partition key for a retailer and
// validity window: retailer(lowercased)_validFrom_validTo (ISO dates).
func PartitionKeyFor(retailer string, validFrom, validTo time.Time) string {
	return fmt.Sprintf("%s_%s_%s",
		strings.ToLower(strings.TrimSpace(retailer)),
		validFrom.Format("2006-01-02"),
		validTo.Format("2006-01-02"),
	)
}
