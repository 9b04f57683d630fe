package offer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealscanner/deals-cli/internal/model"
	"github.com/dealscanner/deals-cli/internal/normalize"
	"github.com/dealscanner/deals-cli/internal/sku"
	"github.com/dealscanner/deals-cli/internal/unitprice"
)

// BatchResult reports the outcome of one ingested scan payload.
type BatchResult struct {
	Retailer     string           `json:"retailer"`
	PartitionKey string           `json:"partition_key"`
	Ingested     int              `json:"ingested"`
	Failed       int              `json:"failed"`
	Errors       []string         `json:"errors,omitempty"`
	Stats        *model.ScanStats `json:"stats,omitempty"`
}

// bulkOfferWriter is implemented by stores that can persist a whole
// batch in one round trip.
type bulkOfferWriter interface {
	BulkUpsertOffers(ctx context.Context, offers []model.Offer) (int64, error)
}

// IngestScan processes one scan payload. The legacy tilbud shape runs
// the full-derive path; the v2 offers shape trusts scanner-supplied
// derived values. A bad offer never aborts the rest of the batch: its
// error is counted and reported in the result.
func (s *Service) IngestScan(ctx context.Context, payload *model.ScanPayload) (*BatchResult, error) {
	retailer := strings.ToLower(payload.Meta.RetailerName())
	if retailer == "" {
		return nil, eris.New("offer: scan payload missing retailer")
	}

	validFrom, validTo := s.parseValidity(payload.Meta.ValidFromRaw(), payload.Meta.ValidToRaw())
	partitionKey := model.PartitionKeyFor(retailer, validFrom, validTo)
	sourceFile := payload.Meta.SourceFile()
	now := s.now().UTC()

	res := &BatchResult{
		Retailer:     retailer,
		PartitionKey: partitionKey,
		Stats:        payload.Stats,
	}

	var built []model.Offer
	if payload.IsLegacy() {
		for i := range payload.Tilbud {
			lo := &payload.Tilbud[i]
			o, err := s.deriveOffer(ctx, lo, partitionKey, retailer, validFrom, validTo, sourceFile, now)
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, ingestError(lo.Produkt, err))
				continue
			}
			built = append(built, *o)
		}
	} else {
		for i := range payload.Offers {
			so := &payload.Offers[i]
			o, err := s.trustOffer(ctx, so, partitionKey, retailer, validFrom, validTo, sourceFile, now)
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, ingestError(so.ProductTextRaw, err))
				continue
			}
			built = append(built, *o)
		}
	}

	s.persistBatch(ctx, built, res)

	zap.L().Info("scan ingested",
		zap.String("retailer", retailer),
		zap.String("partition_key", partitionKey),
		zap.Int("ingested", res.Ingested),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// persistBatch writes built offers, preferring the store's bulk path.
// On a bulk failure it degrades to per-offer upserts so a single bad
// row surfaces individually instead of failing the batch.
func (s *Service) persistBatch(ctx context.Context, built []model.Offer, res *BatchResult) {
	if len(built) == 0 {
		return
	}

	if bulk, ok := s.store.(bulkOfferWriter); ok {
		if _, err := bulk.BulkUpsertOffers(ctx, built); err == nil {
			res.Ingested = len(built)
			return
		} else {
			zap.L().Warn("bulk upsert failed, falling back to per-offer writes", zap.Error(err))
		}
	}

	for i := range built {
		if err := s.store.UpsertOffer(ctx, &built[i]); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ingestError(built[i].ProductTextRaw, err))
			continue
		}
		res.Ingested++
	}
}

// deriveOffer builds an offer from raw legacy fields, computing every
// derived value locally.
func (s *Service) deriveOffer(ctx context.Context, lo *model.LegacyOffer, partitionKey, retailer string, validFrom, validTo time.Time, sourceFile string, now time.Time) (*model.Offer, error) {
	amountValue, amountUnit := lo.AmountValue(), lo.AmountUnit()
	pack := lo.Antal
	if pack < 1 {
		pack = 1
	}

	category := strings.TrimSpace(lo.Kategori)
	if category == "" {
		var err error
		category, err = s.classifier.Classify(ctx, lo.Produkt)
		if err != nil {
			return nil, err
		}
	}

	o := &model.Offer{
		PartitionKey:   partitionKey,
		Retailer:       retailer,
		ValidFrom:      validFrom,
		ValidTo:        validTo,
		SourceFile:     sourceFile,
		ProductTextRaw: lo.Produkt,
		BrandNorm:      normalize.Token(lo.Maerke),
		ProductNorm:    normalize.Token(lo.Produkt),
		VariantNorm:    normalize.Token(lo.Variant),
		Category:       category,
		NetAmountValue: amountValue,
		NetAmountUnit:  amountUnit,
		PackCount:      pack,
		ContainerType:  lo.Emballage,
		PriceValue:     lo.TotalPris,
		DepositValue:   lo.Pant,
		Confidence:     lo.Konfidens,
		Comment:        lo.Kommentar,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if lo.Side > 0 {
		o.Trace = &model.Trace{Page: lo.Side}
	}

	s.recompute(o)
	o.RowKey = o.SkuKey
	if o.RowKey == "" {
		o.RowKey = sku.FallbackRowKey(o.ProductTextRaw, o.PriceValue)
	}

	if o.Confidence >= s.threshold {
		o.Status = model.StatusPublished
	} else {
		o.Status = model.StatusNeedsReview
		o.ReviewReason = s.reviewReason(o)
	}
	return o, nil
}

// trustOffer builds an offer from the v2 shape, keeping scanner-supplied
// derived values and recomputing only what is absent.
func (s *Service) trustOffer(ctx context.Context, so *model.ScannedOffer, partitionKey, retailer string, validFrom, validTo time.Time, sourceFile string, now time.Time) (*model.Offer, error) {
	pack := so.PackCount
	if pack < 1 {
		pack = 1
	}

	category := strings.TrimSpace(so.Category)
	if category == "" {
		var err error
		category, err = s.classifier.Classify(ctx, so.ProductTextRaw)
		if err != nil {
			return nil, err
		}
	}

	o := &model.Offer{
		PartitionKey:     partitionKey,
		Retailer:         retailer,
		ValidFrom:        validFrom,
		ValidTo:          validTo,
		SourceFile:       sourceFile,
		ProductTextRaw:   so.ProductTextRaw,
		BrandNorm:        so.BrandNorm,
		ProductNorm:      so.ProductNorm,
		VariantNorm:      so.VariantNorm,
		Category:         category,
		NetAmountValue:   so.NetAmountValue,
		NetAmountUnit:    so.NetAmountUnit,
		PackCount:        pack,
		ContainerType:    so.ContainerType,
		PriceValue:       so.PriceValue,
		DepositValue:     so.DepositValue,
		PriceExclDeposit: so.PriceExclDeposit,
		UnitPriceValue:   so.UnitPriceValue,
		UnitPriceUnit:    so.UnitPriceUnit,
		SkuKey:           so.SkuKey,
		Confidence:       so.Confidence,
		Breakdown:        so.Breakdown,
		Status:           model.ParseScannerStatus(so.Status),
		Comment:          so.Comment,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if so.Page > 0 || len(so.BBox) > 0 || len(so.TextLines) > 0 {
		o.Trace = &model.Trace{Page: so.Page, BBox: so.BBox, TextLines: so.TextLines}
	}
	if o.ProductNorm == "" {
		o.ProductNorm = normalize.Token(so.ProductTextRaw)
	}

	if o.SkuKey == "" {
		o.SkuKey = sku.Generate(o.BrandNorm, o.ProductNorm, o.VariantNorm, o.ContainerType, o.NetAmountValue, o.NetAmountUnit)
	}
	if o.PriceExclDeposit <= 0 {
		o.PriceExclDeposit = unitprice.PriceExclDeposit(o.PriceValue, o.DepositValue)
	}
	if o.UnitPriceValue == nil {
		if v, unit, ok := unitprice.Calculate(o.PriceValue, o.DepositValue, o.NetAmountValue, o.NetAmountUnit, o.PackCount); ok {
			o.UnitPriceValue = &v
			o.UnitPriceUnit = unit
		}
	}

	o.RowKey = o.SkuKey
	if o.RowKey == "" {
		o.RowKey = sku.FallbackRowKey(o.ProductTextRaw, o.PriceValue)
	}
	return o, nil
}

// recompute refreshes every derived field from the normalized inputs.
// Called on ingest and after every review mutation so derived fields can
// never go stale.
func (s *Service) recompute(o *model.Offer) {
	o.SkuKey = sku.Generate(o.BrandNorm, o.ProductNorm, o.VariantNorm, o.ContainerType, o.NetAmountValue, o.NetAmountUnit)
	o.PriceExclDeposit = unitprice.PriceExclDeposit(o.PriceValue, o.DepositValue)

	o.UnitPriceValue = nil
	o.UnitPriceUnit = ""
	if v, unit, ok := unitprice.Calculate(o.PriceValue, o.DepositValue, o.NetAmountValue, o.NetAmountUnit, o.PackCount); ok {
		o.UnitPriceValue = &v
		o.UnitPriceUnit = unit
	}
}

// reviewReason explains why an offer landed in the review queue.
func (s *Service) reviewReason(o *model.Offer) string {
	var reasons []string
	if o.SkuKey == "" {
		reasons = append(reasons, "missing SKU key")
	}
	if o.PriceValue <= 0 {
		reasons = append(reasons, "missing price")
	}
	if o.ProductNorm == "" {
		reasons = append(reasons, "missing normalized product name")
	}
	if b := o.Breakdown; b != nil {
		if b.Price < s.threshold {
			reasons = append(reasons, "low price confidence")
		}
		if b.Amount < s.threshold {
			reasons = append(reasons, "low amount confidence")
		}
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("confidence %.2f below publish threshold", o.Confidence)
	}
	return "Needs review: " + strings.Join(reasons, ", ")
}

// ingestError pairs a truncated product context with the failure so the
// batch result stays readable even for long OCR text.
func ingestError(productText string, err error) string {
	const maxContext = 40
	runes := []rune(productText)
	if len(runes) > maxContext {
		productText = string(runes[:maxContext]) + "..."
	}
	return fmt.Sprintf("%s: %v", productText, err)
}
