package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dealscanner/deals-cli/internal/db"
	"github.com/dealscanner/deals-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_offer":         `SELECT ` + offerColumns + ` FROM offers WHERE partition_key = $1 AND row_key = $2`,
	"append_correction": `INSERT INTO correction_events (id, partition_key, row_key, event_type, field, old_value, new_value, reviewer, reason, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"list_corrections":  `SELECT id, partition_key, row_key, event_type, field, old_value, new_value, reviewer, reason, created_at FROM correction_events WHERE partition_key = $1 AND row_key = $2 ORDER BY created_at DESC, id DESC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS offers (
	partition_key      TEXT NOT NULL,
	row_key            TEXT NOT NULL,
	retailer           TEXT NOT NULL,
	valid_from         TIMESTAMPTZ NOT NULL,
	valid_to           TIMESTAMPTZ NOT NULL,
	source_file        TEXT NOT NULL DEFAULT '',
	product_text_raw   TEXT NOT NULL DEFAULT '',
	brand_norm         TEXT NOT NULL DEFAULT '',
	product_norm       TEXT NOT NULL DEFAULT '',
	variant_norm       TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	net_amount_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
	net_amount_unit    TEXT NOT NULL DEFAULT '',
	pack_count         INTEGER NOT NULL DEFAULT 0,
	container_type     TEXT NOT NULL DEFAULT '',
	price_value        DOUBLE PRECISION NOT NULL DEFAULT 0,
	deposit_value      DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_excl_deposit DOUBLE PRECISION NOT NULL DEFAULT 0,
	unit_price_value   DOUBLE PRECISION,
	unit_price_unit    TEXT NOT NULL DEFAULT '',
	sku_key            TEXT NOT NULL DEFAULT '',
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	breakdown          JSONB,
	status             TEXT NOT NULL,
	reviewed_by        TEXT NOT NULL DEFAULT '',
	reviewed_at        TIMESTAMPTZ,
	review_reason      TEXT NOT NULL DEFAULT '',
	comment            TEXT NOT NULL DEFAULT '',
	trace              JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (partition_key, row_key)
);

CREATE INDEX IF NOT EXISTS idx_offers_retailer ON offers(retailer);
CREATE INDEX IF NOT EXISTS idx_offers_status ON offers(status);
CREATE INDEX IF NOT EXISTS idx_offers_category ON offers(category);
CREATE INDEX IF NOT EXISTS idx_offers_validity ON offers(valid_from, valid_to);
CREATE INDEX IF NOT EXISTS idx_offers_sku_key ON offers(sku_key);

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
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_corrections_offer ON correction_events(partition_key, row_key, created_at DESC);

CREATE TABLE IF NOT EXISTS sku_overrides (
	id           TEXT PRIMARY KEY,
	retailer     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	sku_key      TEXT NOT NULL,
	related_keys JSONB NOT NULL DEFAULT '[]',
	active       BOOLEAN NOT NULL DEFAULT true,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (retailer, kind, sku_key)
);

CREATE INDEX IF NOT EXISTS idx_overrides_retailer ON sku_overrides(retailer);

CREATE TABLE IF NOT EXISTS categories (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	keywords    JSONB NOT NULL DEFAULT '[]',
	description TEXT NOT NULL DEFAULT '',
	sort_order  INTEGER NOT NULL DEFAULT 100,
	active      BOOLEAN NOT NULL DEFAULT true,
	parent_id   TEXT NOT NULL DEFAULT '',
	icon        TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// offerUpsertColumns is offerColumns in positional order for bulk operations.
var offerUpsertColumns = []string{
	"partition_key", "row_key", "retailer", "valid_from", "valid_to", "source_file",
	"product_text_raw", "brand_norm", "product_norm", "variant_norm", "category",
	"net_amount_value", "net_amount_unit", "pack_count", "container_type",
	"price_value", "deposit_value", "price_excl_deposit", "unit_price_value", "unit_price_unit",
	"sku_key", "confidence", "breakdown", "status",
	"reviewed_by", "reviewed_at", "review_reason", "comment", "trace", "created_at", "updated_at",
}

func offerRow(o *model.Offer) ([]any, error) {
	var breakdownJSON, traceJSON []byte
	var err error
	if o.Breakdown != nil {
		if breakdownJSON, err = json.Marshal(o.Breakdown); err != nil {
			return nil, err
		}
	}
	if o.Trace != nil {
		if traceJSON, err = json.Marshal(o.Trace); err != nil {
			return nil, err
		}
	}
	return []any{
		o.PartitionKey, o.RowKey, o.Retailer, o.ValidFrom.UTC(), o.ValidTo.UTC(), o.SourceFile,
		o.ProductTextRaw, o.BrandNorm, o.ProductNorm, o.VariantNorm, o.Category,
		o.NetAmountValue, o.NetAmountUnit, o.PackCount, o.ContainerType,
		o.PriceValue, o.DepositValue, o.PriceExclDeposit, o.UnitPriceValue, o.UnitPriceUnit,
		o.SkuKey, o.Confidence, breakdownJSON, string(o.Status),
		o.ReviewedBy, o.ReviewedAt, o.ReviewReason, o.Comment, traceJSON, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	}, nil
}

const upsertOfferSQL = `INSERT INTO offers (` + offerColumns + `)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
	 ON CONFLICT (partition_key, row_key) DO UPDATE SET
		retailer = EXCLUDED.retailer,
		valid_from = EXCLUDED.valid_from,
		valid_to = EXCLUDED.valid_to,
		source_file = EXCLUDED.source_file,
		product_text_raw = EXCLUDED.product_text_raw,
		brand_norm = EXCLUDED.brand_norm,
		product_norm = EXCLUDED.product_norm,
		variant_norm = EXCLUDED.variant_norm,
		category = EXCLUDED.category,
		net_amount_value = EXCLUDED.net_amount_value,
		net_amount_unit = EXCLUDED.net_amount_unit,
		pack_count = EXCLUDED.pack_count,
		container_type = EXCLUDED.container_type,
		price_value = EXCLUDED.price_value,
		deposit_value = EXCLUDED.deposit_value,
		price_excl_deposit = EXCLUDED.price_excl_deposit,
		unit_price_value = EXCLUDED.unit_price_value,
		unit_price_unit = EXCLUDED.unit_price_unit,
		sku_key = EXCLUDED.sku_key,
		confidence = EXCLUDED.confidence,
		breakdown = EXCLUDED.breakdown,
		status = EXCLUDED.status,
		reviewed_by = EXCLUDED.reviewed_by,
		reviewed_at = EXCLUDED.reviewed_at,
		review_reason = EXCLUDED.review_reason,
		comment = EXCLUDED.comment,
		trace = EXCLUDED.trace,
		updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertOffer(ctx context.Context, o *model.Offer) error {
	row, err := offerRow(o)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal offer")
	}
	_, err = s.pool.Exec(ctx, upsertOfferSQL, row...)
	return eris.Wrapf(err, "postgres: upsert offer %s/%s", o.PartitionKey, o.RowKey)
}

// BulkUpsertOffers writes a whole batch through COPY plus ON CONFLICT.
// The ingest path prefers this over per-offer round trips.
func (s *PostgresStore) BulkUpsertOffers(ctx context.Context, offers []model.Offer) (int64, error) {
	rows := make([][]any, 0, len(offers))
	for i := range offers {
		row, err := offerRow(&offers[i])
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal offer %s/%s", offers[i].PartitionKey, offers[i].RowKey)
		}
		rows = append(rows, row)
	}

	// created_at stays at its original value on conflict.
	updateCols := make([]string, 0, len(offerUpsertColumns))
	for _, c := range offerUpsertColumns {
		switch c {
		case "partition_key", "row_key", "created_at":
		default:
			updateCols = append(updateCols, c)
		}
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "offers",
		Columns:      offerUpsertColumns,
		ConflictKeys: []string{"partition_key", "row_key"},
		UpdateCols:   updateCols,
	}, rows)
}

func (s *PostgresStore) GetOffer(ctx context.Context, partitionKey, rowKey string) (*model.Offer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE partition_key = $1 AND row_key = $2`,
		partitionKey, rowKey,
	)
	o, err := scanPgOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: offer %s/%s", partitionKey, rowKey)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get offer %s/%s", partitionKey, rowKey)
	}
	return o, nil
}

func (s *PostgresStore) ListOffers(ctx context.Context, filter OfferFilter) ([]model.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Retailer != "" {
		query += ` AND retailer = ` + arg(filter.Retailer)
	}
	if filter.Category != "" {
		query += ` AND category = ` + arg(filter.Category)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.ValidOn != nil {
		d := filter.ValidOn.UTC()
		query += ` AND valid_from <= ` + arg(d)
		query += ` AND valid_to >= ` + arg(d)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list offers")
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		o, err := scanPgOffer(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
		}
		offers = append(offers, *o)
	}
	return offers, eris.Wrap(rows.Err(), "postgres: list offers iterate")
}

func (s *PostgresStore) AppendCorrection(ctx context.Context, e *model.CorrectionEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO correction_events (id, partition_key, row_key, event_type, field, old_value, new_value, reviewer, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.PartitionKey, e.RowKey, string(e.Type), e.Field, e.OldValue, e.NewValue, e.Reviewer, e.Reason, e.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: append correction for %s/%s", e.PartitionKey, e.RowKey)
}

func (s *PostgresStore) ListCorrections(ctx context.Context, partitionKey, rowKey string) ([]model.CorrectionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, partition_key, row_key, event_type, field, old_value, new_value, reviewer, reason, created_at
		 FROM correction_events WHERE partition_key = $1 AND row_key = $2
		 ORDER BY created_at DESC, id DESC`,
		partitionKey, rowKey,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var events []model.CorrectionEvent
	for rows.Next() {
		var e model.CorrectionEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.PartitionKey, &e.RowKey, &eventType, &e.Field,
			&e.OldValue, &e.NewValue, &e.Reviewer, &e.Reason, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		e.Type = model.EventType(eventType)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list corrections iterate")
}

func (s *PostgresStore) UpsertOverride(ctx context.Context, o *model.SkuOverride) error {
	relatedJSON, err := json.Marshal(o.RelatedKeys)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal related keys")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sku_overrides (id, retailer, kind, sku_key, related_keys, active, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (retailer, kind, sku_key) DO UPDATE SET
			related_keys = EXCLUDED.related_keys,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		o.ID, o.Retailer, string(o.Kind), o.SkuKey, relatedJSON, o.Active, o.CreatedBy,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert override for %s", o.Retailer)
}

func (s *PostgresStore) ListOverrides(ctx context.Context, retailer string, includeInactive bool) ([]model.SkuOverride, error) {
	query := `SELECT id, retailer, kind, sku_key, related_keys, active, created_by, created_at, updated_at
	          FROM sku_overrides WHERE retailer = $1`
	if !includeInactive {
		query += ` AND active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, retailer)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list overrides")
	}
	defer rows.Close()

	var overrides []model.SkuOverride
	for rows.Next() {
		var o model.SkuOverride
		var kind string
		var relatedJSON []byte
		if err := rows.Scan(&o.ID, &o.Retailer, &kind, &o.SkuKey, &relatedJSON,
			&o.Active, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan override")
		}
		o.Kind = model.OverrideKind(kind)
		if err := json.Unmarshal(relatedJSON, &o.RelatedKeys); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal related keys")
		}
		overrides = append(overrides, o)
	}
	return overrides, eris.Wrap(rows.Err(), "postgres: list overrides iterate")
}

func (s *PostgresStore) DeactivateOverride(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sku_overrides SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate override %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "override %s", id)
	}
	return nil
}

func (s *PostgresStore) UpsertCategory(ctx context.Context, c *model.Category) error {
	keywordsJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal keywords")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO categories (id, name, keywords, description, sort_order, active, parent_id, icon, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			keywords = EXCLUDED.keywords,
			description = EXCLUDED.description,
			sort_order = EXCLUDED.sort_order,
			active = EXCLUDED.active,
			parent_id = EXCLUDED.parent_id,
			icon = EXCLUDED.icon,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, keywordsJSON, c.Description, c.SortOrder, c.Active, c.ParentID, c.Icon, c.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert category %s", c.ID)
}

func (s *PostgresStore) ListCategories(ctx context.Context, activeOnly bool) ([]model.Category, error) {
	query := `SELECT id, name, keywords, description, sort_order, active, parent_id, icon, updated_at FROM categories`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY sort_order ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list categories")
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		var keywordsJSON []byte
		if err := rows.Scan(&c.ID, &c.Name, &keywordsJSON, &c.Description,
			&c.SortOrder, &c.Active, &c.ParentID, &c.Icon, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		if err := json.Unmarshal(keywordsJSON, &c.Keywords); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal keywords")
		}
		categories = append(categories, c)
	}
	return categories, eris.Wrap(rows.Err(), "postgres: list categories iterate")
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete category %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "category %s", id)
	}
	return nil
}

func scanPgOffer(row pgx.Row) (*model.Offer, error) {
	var o model.Offer
	var status string
	var breakdownJSON, traceJSON []byte

	err := row.Scan(
		&o.PartitionKey, &o.RowKey, &o.Retailer, &o.ValidFrom, &o.ValidTo, &o.SourceFile,
		&o.ProductTextRaw, &o.BrandNorm, &o.ProductNorm, &o.VariantNorm, &o.Category,
		&o.NetAmountValue, &o.NetAmountUnit, &o.PackCount, &o.ContainerType,
		&o.PriceValue, &o.DepositValue, &o.PriceExclDeposit, &o.UnitPriceValue, &o.UnitPriceUnit,
		&o.SkuKey, &o.Confidence, &breakdownJSON, &status,
		&o.ReviewedBy, &o.ReviewedAt, &o.ReviewReason, &o.Comment, &traceJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = model.OfferStatus(status)
	if len(breakdownJSON) > 0 {
		o.Breakdown = &model.ConfidenceBreakdown{}
		if err := json.Unmarshal(breakdownJSON, o.Breakdown); err != nil {
			return nil, err
		}
	}
	if len(traceJSON) > 0 {
		o.Trace = &model.Trace{}
		if err := json.Unmarshal(traceJSON, o.Trace); err != nil {
			return nil, err
		}
	}
	return &o, nil
}
