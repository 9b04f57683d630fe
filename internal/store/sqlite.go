package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/dealscanner/deals-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS offers (
	partition_key      TEXT NOT NULL,
	row_key            TEXT NOT NULL,
	retailer           TEXT NOT NULL,
	valid_from         DATETIME NOT NULL,
	valid_to           DATETIME NOT NULL,
	source_file        TEXT NOT NULL DEFAULT '',
	product_text_raw   TEXT NOT NULL DEFAULT '',
	brand_norm         TEXT NOT NULL DEFAULT '',
	product_norm       TEXT NOT NULL DEFAULT '',
	variant_norm       TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	net_amount_value   REAL NOT NULL DEFAULT 0,
	net_amount_unit    TEXT NOT NULL DEFAULT '',
	pack_count         INTEGER NOT NULL DEFAULT 0,
	container_type     TEXT NOT NULL DEFAULT '',
	price_value        REAL NOT NULL DEFAULT 0,
	deposit_value      REAL NOT NULL DEFAULT 0,
	price_excl_deposit REAL NOT NULL DEFAULT 0,
	unit_price_value   REAL,
	unit_price_unit    TEXT NOT NULL DEFAULT '',
	sku_key            TEXT NOT NULL DEFAULT '',
	confidence         REAL NOT NULL DEFAULT 0,
	breakdown          TEXT,
	status             TEXT NOT NULL,
	reviewed_by        TEXT NOT NULL DEFAULT '',
	reviewed_at        DATETIME,
	review_reason      TEXT NOT NULL DEFAULT '',
	comment            TEXT NOT NULL DEFAULT '',
	trace              TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	PRIMARY KEY (partition_key, row_key)
);

CREATE INDEX IF NOT EXISTS idx_offers_retailer ON offers(retailer);
CREATE INDEX IF NOT EXISTS idx_offers_status ON offers(status);
CREATE INDEX IF NOT EXISTS idx_offers_category ON offers(category);
CREATE INDEX IF NOT EXISTS idx_offers_validity ON offers(valid_from, valid_to);

CREATE TABLE IF NOT EXISTS correction_events (
	id            TEXT PRIMARY KEY,
	partition_key TEXT NOT NULL,
	row_key       TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	field         TEXT NOT NULL DEFAULT '',
	old_value     TEXT NOT NULL DEFAULT '',
	new_value     TEXT NOT NULL DEFAULT '',
	reviewer      TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corrections_offer ON correction_events(partition_key, row_key, created_at DESC);

CREATE TABLE IF NOT EXISTS sku_overrides (
	id           TEXT PRIMARY KEY,
	retailer     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	sku_key      TEXT NOT NULL,
	related_keys TEXT NOT NULL DEFAULT '[]',
	active       INTEGER NOT NULL DEFAULT 1,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	UNIQUE (retailer, kind, sku_key)
);

CREATE INDEX IF NOT EXISTS idx_overrides_retailer ON sku_overrides(retailer);

CREATE TABLE IF NOT EXISTS categories (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	keywords    TEXT NOT NULL DEFAULT '[]',
	description TEXT NOT NULL DEFAULT '',
	sort_order  INTEGER NOT NULL DEFAULT 100,
	active      INTEGER NOT NULL DEFAULT 1,
	parent_id   TEXT NOT NULL DEFAULT '',
	icon        TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const offerColumns = `partition_key, row_key, retailer, valid_from, valid_to, source_file,
	product_text_raw, brand_norm, product_norm, variant_norm, category,
	net_amount_value, net_amount_unit, pack_count, container_type,
	price_value, deposit_value, price_excl_deposit, unit_price_value, unit_price_unit,
	sku_key, confidence, breakdown, status,
	reviewed_by, reviewed_at, review_reason, comment, trace, created_at, updated_at`

func (s *SQLiteStore) UpsertOffer(ctx context.Context, o *model.Offer) error {
	breakdown, trace, err := marshalOfferJSON(o)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal offer")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO offers (`+offerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (partition_key, row_key) DO UPDATE SET
			retailer = excluded.retailer,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			source_file = excluded.source_file,
			product_text_raw = excluded.product_text_raw,
			brand_norm = excluded.brand_norm,
			product_norm = excluded.product_norm,
			variant_norm = excluded.variant_norm,
			category = excluded.category,
			net_amount_value = excluded.net_amount_value,
			net_amount_unit = excluded.net_amount_unit,
			pack_count = excluded.pack_count,
			container_type = excluded.container_type,
			price_value = excluded.price_value,
			deposit_value = excluded.deposit_value,
			price_excl_deposit = excluded.price_excl_deposit,
			unit_price_value = excluded.unit_price_value,
			unit_price_unit = excluded.unit_price_unit,
			sku_key = excluded.sku_key,
			confidence = excluded.confidence,
			breakdown = excluded.breakdown,
			status = excluded.status,
			reviewed_by = excluded.reviewed_by,
			reviewed_at = excluded.reviewed_at,
			review_reason = excluded.review_reason,
			comment = excluded.comment,
			trace = excluded.trace,
			updated_at = excluded.updated_at`,
		o.PartitionKey, o.RowKey, o.Retailer, o.ValidFrom.UTC(), o.ValidTo.UTC(), o.SourceFile,
		o.ProductTextRaw, o.BrandNorm, o.ProductNorm, o.VariantNorm, o.Category,
		o.NetAmountValue, o.NetAmountUnit, o.PackCount, o.ContainerType,
		o.PriceValue, o.DepositValue, o.PriceExclDeposit, o.UnitPriceValue, o.UnitPriceUnit,
		o.SkuKey, o.Confidence, breakdown, string(o.Status),
		o.ReviewedBy, o.ReviewedAt, o.ReviewReason, o.Comment, trace, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert offer %s/%s", o.PartitionKey, o.RowKey)
}

func (s *SQLiteStore) GetOffer(ctx context.Context, partitionKey, rowKey string) (*model.Offer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE partition_key = ? AND row_key = ?`,
		partitionKey, rowKey,
	)
	o, err := scanOffer(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: offer %s/%s", partitionKey, rowKey)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get offer %s/%s", partitionKey, rowKey)
	}
	return o, nil
}

func (s *SQLiteStore) ListOffers(ctx context.Context, filter OfferFilter) ([]model.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE 1=1`
	var args []any

	if filter.Retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, filter.Retailer)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ValidOn != nil {
		query += ` AND valid_from <= ? AND valid_to >= ?`
		d := filter.ValidOn.UTC()
		args = append(args, d, d)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list offers")
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan offer")
		}
		offers = append(offers, *o)
	}
	return offers, eris.Wrap(rows.Err(), "sqlite: list offers iterate")
}

func (s *SQLiteStore) AppendCorrection(ctx context.Context, e *model.CorrectionEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO correction_events (id, partition_key, row_key, event_type, field, old_value, new_value, reviewer, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PartitionKey, e.RowKey, string(e.Type), e.Field, e.OldValue, e.NewValue, e.Reviewer, e.Reason, e.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: append correction for %s/%s", e.PartitionKey, e.RowKey)
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, partitionKey, rowKey string) ([]model.CorrectionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, partition_key, row_key, event_type, field, old_value, new_value, reviewer, reason, created_at
		 FROM correction_events WHERE partition_key = ? AND row_key = ?
		 ORDER BY created_at DESC, id DESC`,
		partitionKey, rowKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close()

	var events []model.CorrectionEvent
	for rows.Next() {
		var e model.CorrectionEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.PartitionKey, &e.RowKey, &eventType, &e.Field,
			&e.OldValue, &e.NewValue, &e.Reviewer, &e.Reason, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		e.Type = model.EventType(eventType)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list corrections iterate")
}

func (s *SQLiteStore) UpsertOverride(ctx context.Context, o *model.SkuOverride) error {
	relatedJSON, err := json.Marshal(o.RelatedKeys)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal related keys")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sku_overrides (id, retailer, kind, sku_key, related_keys, active, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (retailer, kind, sku_key) DO UPDATE SET
			related_keys = excluded.related_keys,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		o.ID, o.Retailer, string(o.Kind), o.SkuKey, string(relatedJSON), o.Active, o.CreatedBy,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert override for %s", o.Retailer)
}

func (s *SQLiteStore) ListOverrides(ctx context.Context, retailer string, includeInactive bool) ([]model.SkuOverride, error) {
	query := `SELECT id, retailer, kind, sku_key, related_keys, active, created_by, created_at, updated_at
	          FROM sku_overrides WHERE retailer = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, retailer)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list overrides")
	}
	defer rows.Close()

	var overrides []model.SkuOverride
	for rows.Next() {
		var o model.SkuOverride
		var kind, relatedJSON string
		if err := rows.Scan(&o.ID, &o.Retailer, &kind, &o.SkuKey, &relatedJSON,
			&o.Active, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan override")
		}
		o.Kind = model.OverrideKind(kind)
		if err := json.Unmarshal([]byte(relatedJSON), &o.RelatedKeys); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal related keys")
		}
		overrides = append(overrides, o)
	}
	return overrides, eris.Wrap(rows.Err(), "sqlite: list overrides iterate")
}

func (s *SQLiteStore) DeactivateOverride(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sku_overrides SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate override %s", id)
	}
	return checkRowsAffected(res, "override", id)
}

func (s *SQLiteStore) UpsertCategory(ctx context.Context, c *model.Category) error {
	keywordsJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal keywords")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, keywords, description, sort_order, active, parent_id, icon, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			keywords = excluded.keywords,
			description = excluded.description,
			sort_order = excluded.sort_order,
			active = excluded.active,
			parent_id = excluded.parent_id,
			icon = excluded.icon,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, string(keywordsJSON), c.Description, c.SortOrder, c.Active, c.ParentID, c.Icon, c.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert category %s", c.ID)
}

func (s *SQLiteStore) ListCategories(ctx context.Context, activeOnly bool) ([]model.Category, error) {
	query := `SELECT id, name, keywords, description, sort_order, active, parent_id, icon, updated_at FROM categories`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY sort_order ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list categories")
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		var keywordsJSON string
		if err := rows.Scan(&c.ID, &c.Name, &keywordsJSON, &c.Description,
			&c.SortOrder, &c.Active, &c.ParentID, &c.Icon, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &c.Keywords); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
		}
		categories = append(categories, c)
	}
	return categories, eris.Wrap(rows.Err(), "sqlite: list categories iterate")
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete category %s", id)
	}
	return checkRowsAffected(res, "category", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func marshalOfferJSON(o *model.Offer) (breakdown, trace *string, err error) {
	if o.Breakdown != nil {
		b, err := json.Marshal(o.Breakdown)
		if err != nil {
			return nil, nil, err
		}
		s := string(b)
		breakdown = &s
	}
	if o.Trace != nil {
		b, err := json.Marshal(o.Trace)
		if err != nil {
			return nil, nil, err
		}
		s := string(b)
		trace = &s
	}
	return breakdown, trace, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOffer(row scannable) (*model.Offer, error) {
	var o model.Offer
	var status string
	var unitPrice sql.NullFloat64
	var reviewedAt sql.NullTime
	var breakdownJSON, traceJSON sql.NullString

	err := row.Scan(
		&o.PartitionKey, &o.RowKey, &o.Retailer, &o.ValidFrom, &o.ValidTo, &o.SourceFile,
		&o.ProductTextRaw, &o.BrandNorm, &o.ProductNorm, &o.VariantNorm, &o.Category,
		&o.NetAmountValue, &o.NetAmountUnit, &o.PackCount, &o.ContainerType,
		&o.PriceValue, &o.DepositValue, &o.PriceExclDeposit, &unitPrice, &o.UnitPriceUnit,
		&o.SkuKey, &o.Confidence, &breakdownJSON, &status,
		&o.ReviewedBy, &reviewedAt, &o.ReviewReason, &o.Comment, &traceJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = model.OfferStatus(status)
	if unitPrice.Valid {
		o.UnitPriceValue = &unitPrice.Float64
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		o.ReviewedAt = &t
	}
	if breakdownJSON.Valid && breakdownJSON.String != "" {
		o.Breakdown = &model.ConfidenceBreakdown{}
		if err := json.Unmarshal([]byte(breakdownJSON.String), o.Breakdown); err != nil {
			return nil, err
		}
	}
	if traceJSON.Valid && traceJSON.String != "" {
		o.Trace = &model.Trace{}
		if err := json.Unmarshal([]byte(traceJSON.String), o.Trace); err != nil {
			return nil, err
		}
	}
	return &o, nil
}
