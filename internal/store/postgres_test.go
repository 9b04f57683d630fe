package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscanner/deals-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetOffer_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM offers WHERE partition_key = \$1 AND row_key = \$2`).
		WithArgs("netto_2026-03-02_2026-03-08", "nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOffer(context.Background(), "netto_2026-03-02_2026-03-08", "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertOffer(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO offers .+ ON CONFLICT \(partition_key, row_key\) DO UPDATE`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	o := &model.Offer{
		PartitionKey: "netto_2026-03-02_2026-03-08",
		RowKey:       "abc123",
		Retailer:     "netto",
		ValidFrom:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ValidTo:      time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		Status:       model.StatusPublished,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.UpsertOffer(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOffers_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{
		"partition_key", "row_key", "retailer", "valid_from", "valid_to", "source_file",
		"product_text_raw", "brand_norm", "product_norm", "variant_norm", "category",
		"net_amount_value", "net_amount_unit", "pack_count", "container_type",
		"price_value", "deposit_value", "price_excl_deposit", "unit_price_value", "unit_price_unit",
		"sku_key", "confidence", "breakdown", "status",
		"reviewed_by", "reviewed_at", "review_reason", "comment", "trace", "created_at", "updated_at",
	}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM offers WHERE 1=1 AND retailer = \$1 AND status = \$2`).
		WithArgs("netto", "needs_review", 100).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"netto_2026-03-02_2026-03-08", "abc123", "netto", now, now.AddDate(0, 0, 6), "f.pdf",
			"Arla Letmælk", "arla", "letmaelk", "", "mejeri",
			1000.0, "ml", 1, "BOTTLE",
			13.32, 0.0, 13.32, (*float64)(nil), "",
			"arla|letmaelk|null|bottle|1000ml", 0.8, []byte(nil), "needs_review",
			"", (*time.Time)(nil), "", "", []byte(nil), now, now,
		))

	offers, err := s.ListOffers(context.Background(), OfferFilter{
		Retailer: "netto",
		Status:   model.StatusNeedsReview,
	})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "abc123", offers[0].RowKey)
	assert.Equal(t, model.StatusNeedsReview, offers[0].Status)
	assert.Nil(t, offers[0].UnitPriceValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendCorrection(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO correction_events`).
		WithArgs("evt-1", "pk", "rk", "field_change", "price_value", "13.32", "12.00", "mette", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendCorrection(context.Background(), &model.CorrectionEvent{
		ID:           "evt-1",
		PartitionKey: "pk",
		RowKey:       "rk",
		Type:         model.EventFieldChange,
		Field:        "price_value",
		OldValue:     "13.32",
		NewValue:     "12.00",
		Reviewer:     "mette",
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeactivateOverride_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sku_overrides SET active = false`).
		WithArgs(pgxmock.AnyArg(), "no-such-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.DeactivateOverride(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteCategory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM categories WHERE id = \$1`).
		WithArgs("mejeri").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.DeleteCategory(context.Background(), "mejeri"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkUpsertOffers_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.BulkUpsertOffers(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPostgresStore_BulkUpsertOffers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_offers"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_offers"}, offerUpsertColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "offers" .+ ON CONFLICT \("partition_key", "row_key"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	offers := []model.Offer{
		{PartitionKey: "pk", RowKey: "r1", Retailer: "netto", ValidFrom: now, ValidTo: now, Status: model.StatusPublished, CreatedAt: now, UpdatedAt: now},
		{PartitionKey: "pk", RowKey: "r2", Retailer: "netto", ValidFrom: now, ValidTo: now, Status: model.StatusPublished, CreatedAt: now, UpdatedAt: now},
	}
	n, err := s.BulkUpsertOffers(context.Background(), offers)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
