package offer

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/dealscanner/deals-cli/internal/model"
)

// OverrideRequest creates or replaces a manual SKU identity correction.
type OverrideRequest struct {
	Retailer    string   `json:"retailer"`
	Kind        string   `json:"kind"`
	SkuKey      string   `json:"sku_key"`
	RelatedKeys []string `json:"related_keys,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`
}

// CreateOverride validates and stores a SKU override. One override per
// (retailer, kind, sku key); a repeat call replaces the related keys.
func (s *Service) CreateOverride(ctx context.Context, req *OverrideRequest) (*model.SkuOverride, error) {
	retailer := strings.ToLower(strings.TrimSpace(req.Retailer))
	if retailer == "" {
		return nil, eris.New("offer: override missing retailer")
	}
	kind := model.OverrideKind(req.Kind)
	if !kind.Valid() {
		return nil, eris.Errorf("offer: unknown override kind %q", req.Kind)
	}
	if strings.TrimSpace(req.SkuKey) == "" {
		return nil, eris.New("offer: override missing sku key")
	}

	now := s.now().UTC()
	o := &model.SkuOverride{
		ID:          uuid.NewString(),
		Retailer:    retailer,
		Kind:        kind,
		SkuKey:      req.SkuKey,
		RelatedKeys: req.RelatedKeys,
		Active:      true,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.UpsertOverride(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Overrides lists a retailer's SKU overrides.
func (s *Service) Overrides(ctx context.Context, retailer string, includeInactive bool) ([]model.SkuOverride, error) {
	return s.store.ListOverrides(ctx, strings.ToLower(strings.TrimSpace(retailer)), includeInactive)
}

// DeactivateOverride soft-disables an override by id.
func (s *Service) DeactivateOverride(ctx context.Context, id string) error {
	return s.store.DeactivateOverride(ctx, id)
}
