package offer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealscanner/deals-cli/internal/model"
	"github.com/dealscanner/deals-cli/internal/normalize"
)

// UpdateRequest is a sparse review edit: nil fields are left untouched.
type UpdateRequest struct {
	PartitionKey string `json:"partition_key"`
	RowKey       string `json:"row_key"`

	Brand    *string  `json:"brand,omitempty"`
	Product  *string  `json:"product,omitempty"`
	Variant  *string  `json:"variant,omitempty"`
	Category *string  `json:"category,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Deposit  *float64 `json:"deposit,omitempty"`

	AmountValue   *float64 `json:"amount_value,omitempty"`
	AmountUnit    *string  `json:"amount_unit,omitempty"`
	PackCount     *int     `json:"pack_count,omitempty"`
	ContainerType *string  `json:"container_type,omitempty"`
	Comment       *string  `json:"comment,omitempty"`

	Status *string `json:"status,omitempty"`

	Reviewer string `json:"reviewer,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Update applies a review edit. Each tracked field that actually changes
// emits one correction event with its old and new value; untracked
// fields are applied silently. Derived fields are recomputed afterwards,
// and a status change is applied last with its own audit event.
func (s *Service) Update(ctx context.Context, req *UpdateRequest) (*model.Offer, error) {
	o, err := s.store.GetOffer(ctx, req.PartitionKey, req.RowKey)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var events []model.CorrectionEvent
	tracked := func(field, oldVal, newVal string) {
		if oldVal == newVal {
			return
		}
		events = append(events, model.CorrectionEvent{
			ID:           uuid.NewString(),
			PartitionKey: o.PartitionKey,
			RowKey:       o.RowKey,
			Type:         model.EventFieldChange,
			Field:        field,
			OldValue:     oldVal,
			NewValue:     newVal,
			Reviewer:     req.Reviewer,
			Reason:       req.Reason,
			CreatedAt:    now,
		})
	}

	if req.Brand != nil {
		v := normalize.Token(*req.Brand)
		tracked("brand", o.BrandNorm, v)
		o.BrandNorm = v
	}
	if req.Product != nil {
		v := normalize.Token(*req.Product)
		tracked("product", o.ProductNorm, v)
		o.ProductNorm = v
	}
	if req.Variant != nil {
		v := normalize.Token(*req.Variant)
		tracked("variant", o.VariantNorm, v)
		o.VariantNorm = v
	}
	if req.Category != nil {
		v := strings.TrimSpace(*req.Category)
		tracked("category", o.Category, v)
		o.Category = v
	}
	if req.Price != nil {
		tracked("price", formatPrice(o.PriceValue), formatPrice(*req.Price))
		o.PriceValue = *req.Price
	}
	if req.Deposit != nil {
		tracked("deposit", formatPrice(o.DepositValue), formatPrice(*req.Deposit))
		o.DepositValue = *req.Deposit
	}

	// Untracked fields, no audit events.
	if req.AmountValue != nil {
		o.NetAmountValue = *req.AmountValue
	}
	if req.AmountUnit != nil {
		o.NetAmountUnit = *req.AmountUnit
	}
	if req.PackCount != nil {
		o.PackCount = *req.PackCount
	}
	if req.ContainerType != nil {
		o.ContainerType = *req.ContainerType
	}
	if req.Comment != nil {
		o.Comment = *req.Comment
	}

	s.recompute(o)

	if req.Status != nil {
		next := model.ParseOfferStatus(*req.Status)
		if next != o.Status {
			events = append(events, model.CorrectionEvent{
				ID:           uuid.NewString(),
				PartitionKey: o.PartitionKey,
				RowKey:       o.RowKey,
				Type:         model.EventStatusChange,
				OldValue:     string(o.Status),
				NewValue:     string(next),
				Reviewer:     req.Reviewer,
				Reason:       req.Reason,
				CreatedAt:    now,
			})
			o.Status = next
		}
	}

	o.ReviewedBy = req.Reviewer
	o.ReviewedAt = &now
	if req.Reason != "" {
		o.ReviewReason = req.Reason
	}
	o.UpdatedAt = now

	if err := s.store.UpsertOffer(ctx, o); err != nil {
		return nil, err
	}
	for i := range events {
		if err := s.store.AppendCorrection(ctx, &events[i]); err != nil {
			return nil, err
		}
	}

	zap.L().Info("offer updated",
		zap.String("partition_key", o.PartitionKey),
		zap.String("row_key", o.RowKey),
		zap.String("reviewer", req.Reviewer),
		zap.Int("events", len(events)),
	)
	return o, nil
}

// Delete soft-deletes an offer: status flips to deleted and a deletion
// event is appended. The row is never removed.
func (s *Service) Delete(ctx context.Context, partitionKey, rowKey, reviewer, reason string) error {
	o, err := s.store.GetOffer(ctx, partitionKey, rowKey)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	event := model.CorrectionEvent{
		ID:           uuid.NewString(),
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Type:         model.EventDeleted,
		OldValue:     string(o.Status),
		NewValue:     string(model.StatusDeleted),
		Reviewer:     reviewer,
		Reason:       reason,
		CreatedAt:    now,
	}

	o.Status = model.StatusDeleted
	o.ReviewedBy = reviewer
	o.ReviewedAt = &now
	if reason != "" {
		o.ReviewReason = reason
	}
	o.UpdatedAt = now

	if err := s.store.UpsertOffer(ctx, o); err != nil {
		return err
	}
	if err := s.store.AppendCorrection(ctx, &event); err != nil {
		return err
	}

	zap.L().Info("offer deleted",
		zap.String("partition_key", partitionKey),
		zap.String("row_key", rowKey),
		zap.String("reviewer", reviewer),
	)
	return nil
}

// BatchOpResult reports a batch approve/reject outcome. Malformed ids
// are listed in Skipped rather than dropped silently.
type BatchOpResult struct {
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// BatchApprove publishes every well-formed identity in the list.
func (s *Service) BatchApprove(ctx context.Context, ids []string, reviewer string) (*BatchOpResult, error) {
	status := string(model.StatusPublished)
	return s.batchStatus(ctx, ids, reviewer, status, "Batch approved")
}

// BatchReject sends every well-formed identity back to the review queue.
func (s *Service) BatchReject(ctx context.Context, ids []string, reviewer, reason string) (*BatchOpResult, error) {
	if reason == "" {
		reason = "Batch rejected"
	}
	status := string(model.StatusNeedsReview)
	return s.batchStatus(ctx, ids, reviewer, status, reason)
}

func (s *Service) batchStatus(ctx context.Context, ids []string, reviewer, status, reason string) (*BatchOpResult, error) {
	res := &BatchOpResult{}
	for _, id := range ids {
		// Row keys are often SKU keys and contain separators themselves,
		// so only the first separator splits identity.
		parts := strings.SplitN(id, "|", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		_, err := s.Update(ctx, &UpdateRequest{
			PartitionKey: parts[0],
			RowKey:       parts[1],
			Status:       &status,
			Reviewer:     reviewer,
			Reason:       reason,
		})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", id, eris.Cause(err)))
			continue
		}
		res.Updated++
	}
	return res, nil
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
