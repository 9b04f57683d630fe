package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscanner/deals-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testOffer(partitionKey, rowKey string) *model.Offer {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	unitPrice := 13.32
	return &model.Offer{
		PartitionKey:     partitionKey,
		RowKey:           rowKey,
		Retailer:         "netto",
		ValidFrom:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ValidTo:          time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		SourceFile:       "netto-uge10.pdf",
		ProductTextRaw:   "Arla Letmælk 1L",
		BrandNorm:        "arla",
		ProductNorm:      "letmaelk",
		Category:         "mejeri",
		NetAmountValue:   1000,
		NetAmountUnit:    "ml",
		PackCount:        1,
		ContainerType:    "BOTTLE",
		PriceValue:       13.32,
		PriceExclDeposit: 13.32,
		UnitPriceValue:   &unitPrice,
		UnitPriceUnit:    "kr/L",
		SkuKey:           "arla|letmaelk|null|bottle|1000ml",
		Confidence:       0.95,
		Breakdown:        &model.ConfidenceBreakdown{Price: 1.0, Detection: 0.9},
		Status:           model.StatusPublished,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// --- Offers ---

func TestSQLite_Offer_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	o := testOffer("netto_2026-03-02_2026-03-08", "abc123")
	require.NoError(t, st.UpsertOffer(ctx, o))

	got, err := st.GetOffer(ctx, o.PartitionKey, o.RowKey)
	require.NoError(t, err)
	assert.Equal(t, "arla|letmaelk|null|bottle|1000ml", got.SkuKey)
	assert.Equal(t, model.StatusPublished, got.Status)
	assert.Equal(t, "netto", got.Retailer)
	require.NotNil(t, got.UnitPriceValue)
	assert.InDelta(t, 13.32, *got.UnitPriceValue, 0.001)
	require.NotNil(t, got.Breakdown)
	assert.InDelta(t, 1.0, got.Breakdown.Price, 0.001)
	assert.Nil(t, got.ReviewedAt)
}

func TestSQLite_Offer_UpsertReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	o := testOffer("netto_2026-03-02_2026-03-08", "abc123")
	require.NoError(t, st.UpsertOffer(ctx, o))

	o.PriceValue = 10.00
	o.Status = model.StatusNeedsReview
	o.UpdatedAt = o.UpdatedAt.Add(time.Hour)
	require.NoError(t, st.UpsertOffer(ctx, o))

	got, err := st.GetOffer(ctx, o.PartitionKey, o.RowKey)
	require.NoError(t, err)
	assert.InDelta(t, 10.00, got.PriceValue, 0.001)
	assert.Equal(t, model.StatusNeedsReview, got.Status)
	// created_at survives the replace
	assert.True(t, got.CreatedAt.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
}

func TestSQLite_Offer_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetOffer(context.Background(), "nope", "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLite_Offer_ListFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testOffer("netto_2026-03-02_2026-03-08", "row-a")
	b := testOffer("netto_2026-03-02_2026-03-08", "row-b")
	b.Status = model.StatusNeedsReview
	c := testOffer("rema-1000_2026-03-02_2026-03-08", "row-c")
	c.Retailer = "rema 1000"
	for _, o := range []*model.Offer{a, b, c} {
		require.NoError(t, st.UpsertOffer(ctx, o))
	}

	offers, err := st.ListOffers(ctx, OfferFilter{Retailer: "netto"})
	require.NoError(t, err)
	assert.Len(t, offers, 2)

	offers, err = st.ListOffers(ctx, OfferFilter{Status: model.StatusNeedsReview})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "row-b", offers[0].RowKey)

	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	offers, err = st.ListOffers(ctx, OfferFilter{ValidOn: &day})
	require.NoError(t, err)
	assert.Len(t, offers, 3)

	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	offers, err = st.ListOffers(ctx, OfferFilter{ValidOn: &past})
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestSQLite_Offer_ListLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, rk := range []string{"r1", "r2", "r3"} {
		require.NoError(t, st.UpsertOffer(ctx, testOffer("netto_2026-03-02_2026-03-08", rk)))
	}

	offers, err := st.ListOffers(ctx, OfferFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, offers, 2)
}

// --- Corrections ---

func TestSQLite_Corrections_AppendAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	first := &model.CorrectionEvent{
		ID:           uuid.NewString(),
		PartitionKey: "netto_2026-03-02_2026-03-08",
		RowKey:       "abc123",
		Type:         model.EventFieldChange,
		Field:        "price_value",
		OldValue:     "13.32",
		NewValue:     "12.00",
		Reviewer:     "mette",
		CreatedAt:    base,
	}
	second := &model.CorrectionEvent{
		ID:           uuid.NewString(),
		PartitionKey: "netto_2026-03-02_2026-03-08",
		RowKey:       "abc123",
		Type:         model.EventStatusChange,
		OldValue:     "needs_review",
		NewValue:     "published",
		Reviewer:     "mette",
		CreatedAt:    base.Add(time.Minute),
	}
	require.NoError(t, st.AppendCorrection(ctx, first))
	require.NoError(t, st.AppendCorrection(ctx, second))

	events, err := st.ListCorrections(ctx, "netto_2026-03-02_2026-03-08", "abc123")
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, model.EventStatusChange, events[0].Type)
	assert.Equal(t, "price_value", events[1].Field)
}

// --- Overrides ---

func TestSQLite_Overrides_UpsertListDeactivate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	o := &model.SkuOverride{
		ID:          uuid.NewString(),
		Retailer:    "netto",
		Kind:        model.OverrideMatch,
		SkuKey:      "arla|letmaelk|null|bottle|1000ml",
		RelatedKeys: []string{"arla|letmaelk|oekologisk|bottle|1000ml"},
		Active:      true,
		CreatedBy:   "mette",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.UpsertOverride(ctx, o))

	got, err := st.ListOverrides(ctx, "netto", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"arla|letmaelk|oekologisk|bottle|1000ml"}, got[0].RelatedKeys)

	// Same retailer/kind/sku key replaces instead of duplicating.
	o.RelatedKeys = append(o.RelatedKeys, "arla|letmaelk|mini|bottle|500ml")
	require.NoError(t, st.UpsertOverride(ctx, o))
	got, err = st.ListOverrides(ctx, "netto", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].RelatedKeys, 2)

	require.NoError(t, st.DeactivateOverride(ctx, o.ID))
	got, err = st.ListOverrides(ctx, "netto", false)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = st.ListOverrides(ctx, "netto", true)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLite_Overrides_DeactivateMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.DeactivateOverride(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

// --- Categories ---

func TestSQLite_Categories_UpsertListDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	mejeri := &model.Category{
		ID: "mejeri", Name: "Mejeri", Keywords: []string{"mælk", "ost", "yoghurt"},
		SortOrder: 10, Active: true, UpdatedAt: now,
	}
	andet := &model.Category{
		ID: "andet", Name: "Andet", SortOrder: 999, Active: true, UpdatedAt: now,
	}
	inactive := &model.Category{
		ID: "udgaaet", Name: "Udgået", SortOrder: 50, Active: false, UpdatedAt: now,
	}
	for _, c := range []*model.Category{andet, mejeri, inactive} {
		require.NoError(t, st.UpsertCategory(ctx, c))
	}

	cats, err := st.ListCategories(ctx, true)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	// Sorted by sort_order.
	assert.Equal(t, "mejeri", cats[0].ID)
	assert.Equal(t, "andet", cats[1].ID)
	assert.Equal(t, []string{"mælk", "ost", "yoghurt"}, cats[0].Keywords)

	cats, err = st.ListCategories(ctx, false)
	require.NoError(t, err)
	assert.Len(t, cats, 3)

	require.NoError(t, st.DeleteCategory(ctx, "udgaaet"))
	err = st.DeleteCategory(ctx, "udgaaet")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
