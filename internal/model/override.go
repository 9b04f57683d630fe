package model

import "time"

// OverrideKind selects how a SKU override modifies the identity graph.
type OverrideKind string

const (
	// OverrideMatch declares that distinct SKU keys represent the same product.
	OverrideMatch OverrideKind = "match"
	// OverrideSplit declares that one SKU key must be disambiguated into several.
	OverrideSplit OverrideKind = "split"
)

// Valid reports whether the kind is one of the known values.
func (k OverrideKind) Valid() bool {
	return k == OverrideMatch || k == OverrideSplit
}

// SkuOverride is a manual correction to SKU-key identity matching,
// stored per retailer and soft-deactivatable.
type SkuOverride struct {
	ID          string       `json:"id"`
	Retailer    string       `json:"retailer"`
	Kind        OverrideKind `json:"kind"`
	SkuKey      string       `json:"sku_key"`
	RelatedKeys []string     `json:"related_keys"`
	Active      bool         `json:"active"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
