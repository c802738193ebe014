package localstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/platform/db"
	"github.com/gondolapp/gondolapp/internal/restock"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Postgres persists the local store in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs Postgres.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates missing tables and indexes.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("localstore: ensure schema: %w", err)
	}
	return nil
}

const baseColumns = `id, name, brand, category, image_url, created_at, updated_at`

const variantColumns = `id, base_id, barcode, full_name, type, size, flavor, unit, image_url, created_at`

func scanBase(row pgx.Row) (catalog.ProductBase, error) {
	var b catalog.ProductBase
	err := row.Scan(&b.ID, &b.Name, &b.Brand, &b.Category, &b.ImageURL, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func scanVariant(row pgx.Row) (catalog.ProductVariant, error) {
	var v catalog.ProductVariant
	err := row.Scan(&v.ID, &v.BaseID, &v.Barcode, &v.FullName, &v.Type, &v.Size, &v.Flavor, &v.Unit, &v.ImageURL, &v.CreatedAt)
	return v, err
}

func (p *Postgres) GetBase(ctx context.Context, id string) (catalog.ProductBase, error) {
	b, err := scanBase(p.pool.QueryRow(ctx, `SELECT `+baseColumns+` FROM product_bases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ProductBase{}, catalog.ErrNotFound
	}
	return b, err
}

func (p *Postgres) PutBase(ctx context.Context, b catalog.ProductBase) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO product_bases (`+baseColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, brand = EXCLUDED.brand, category = EXCLUDED.category,
	image_url = EXCLUDED.image_url, updated_at = EXCLUDED.updated_at`,
		b.ID, b.Name, b.Brand, b.Category, b.ImageURL, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *Postgres) DeleteBase(ctx context.Context, id string) error {
	return p.deleteByID(ctx, `DELETE FROM product_bases WHERE id = $1`, id, catalog.ErrNotFound)
}

func (p *Postgres) GetVariant(ctx context.Context, id string) (catalog.ProductVariant, error) {
	v, err := scanVariant(p.pool.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ProductVariant{}, catalog.ErrNotFound
	}
	return v, err
}

func (p *Postgres) PutVariant(ctx context.Context, v catalog.ProductVariant) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO product_variants (`+variantColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET base_id = EXCLUDED.base_id, barcode = EXCLUDED.barcode, full_name = EXCLUDED.full_name,
	type = EXCLUDED.type, size = EXCLUDED.size, flavor = EXCLUDED.flavor, unit = EXCLUDED.unit, image_url = EXCLUDED.image_url`,
		v.ID, v.BaseID, v.Barcode, v.FullName, v.Type, v.Size, v.Flavor, v.Unit, v.ImageURL, v.CreatedAt)
	return err
}

func (p *Postgres) DeleteVariant(ctx context.Context, id string) error {
	return p.deleteByID(ctx, `DELETE FROM product_variants WHERE id = $1`, id, catalog.ErrNotFound)
}

func (p *Postgres) FindVariantByBarcode(ctx context.Context, barcode string) (catalog.ProductVariant, error) {
	v, err := scanVariant(p.pool.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants
WHERE barcode = $1 ORDER BY seq ASC LIMIT 1`, barcode))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.ProductVariant{}, catalog.ErrNotFound
	}
	return v, err
}

func (p *Postgres) ListVariantsByBase(ctx context.Context, baseID string) ([]catalog.ProductVariant, error) {
	return p.queryVariants(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE base_id = $1 ORDER BY seq ASC`, baseID)
}

func (p *Postgres) ListVariants(ctx context.Context) ([]catalog.ProductVariant, error) {
	return p.queryVariants(ctx, `SELECT `+variantColumns+` FROM product_variants ORDER BY seq ASC`)
}

func (p *Postgres) queryVariants(ctx context.Context, query string, args ...any) ([]catalog.ProductVariant, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	variants := []catalog.ProductVariant{}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (p *Postgres) SearchBases(ctx context.Context, term string, limit int) ([]catalog.ProductBase, error) {
	if limit <= 0 {
		limit = 50
	}
	return p.queryBases(ctx, `SELECT `+baseColumns+` FROM product_bases
WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR brand ILIKE '%' || $1 || '%' OR category ILIKE '%' || $1 || '%'
ORDER BY name ASC, id ASC
LIMIT $2`, term, limit)
}

func (p *Postgres) ListBases(ctx context.Context) ([]catalog.ProductBase, error) {
	return p.queryBases(ctx, `SELECT `+baseColumns+` FROM product_bases ORDER BY name ASC, id ASC`)
}

func (p *Postgres) queryBases(ctx context.Context, query string, args ...any) ([]catalog.ProductBase, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bases := []catalog.ProductBase{}
	for rows.Next() {
		b, err := scanBase(rows)
		if err != nil {
			return nil, err
		}
		bases = append(bases, b)
	}
	return bases, rows.Err()
}

const restockColumns = `id, variant_id, quantity, restocked, out_of_stock, added_at, updated_at`

func scanRestock(row pgx.Row) (restock.Item, error) {
	var it restock.Item
	err := row.Scan(&it.ID, &it.VariantID, &it.Quantity, &it.Restocked, &it.OutOfStock, &it.AddedAt, &it.UpdatedAt)
	return it, err
}

func (p *Postgres) ListRestock(ctx context.Context) ([]restock.Item, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+restockColumns+` FROM restock_items ORDER BY added_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []restock.Item{}
	for rows.Next() {
		it, err := scanRestock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (p *Postgres) GetRestock(ctx context.Context, id string) (restock.Item, error) {
	it, err := scanRestock(p.pool.QueryRow(ctx, `SELECT `+restockColumns+` FROM restock_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return restock.Item{}, restock.ErrNotFound
	}
	return it, err
}

func (p *Postgres) InsertRestock(ctx context.Context, it restock.Item) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO restock_items (`+restockColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		it.ID, it.VariantID, it.Quantity, it.Restocked, it.OutOfStock, it.AddedAt, it.UpdatedAt)
	return mapRestockErr(err)
}

func (p *Postgres) FindOpenRestock(ctx context.Context, variantID string) (restock.Item, error) {
	it, err := scanRestock(p.pool.QueryRow(ctx, `SELECT `+restockColumns+` FROM restock_items
WHERE variant_id = $1 AND NOT restocked LIMIT 1`, variantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return restock.Item{}, restock.ErrNotFound
	}
	return it, err
}

func (p *Postgres) UpdateRestock(ctx context.Context, it restock.Item) error {
	tag, err := p.pool.Exec(ctx, `UPDATE restock_items SET quantity = $2, restocked = $3, out_of_stock = $4, updated_at = $5
WHERE id = $1`, it.ID, it.Quantity, it.Restocked, it.OutOfStock, it.UpdatedAt)
	if err != nil {
		return mapRestockErr(err)
	}
	if tag.RowsAffected() == 0 {
		return restock.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteRestock(ctx context.Context, id string) error {
	return p.deleteByID(ctx, `DELETE FROM restock_items WHERE id = $1`, id, restock.ErrNotFound)
}

func (p *Postgres) DeleteRestocked(ctx context.Context) (int, error) {
	return db.ExecCount(ctx, p.pool, `DELETE FROM restock_items WHERE restocked`)
}

func mapRestockErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return restock.ErrDuplicate
	}
	return err
}

const expirationColumns = `id, variant_id, expires_on, quantity, lot_code, added_at, alert_level`

func scanExpiration(row pgx.Row) (expiration.Item, error) {
	var (
		it    expiration.Item
		level string
	)
	err := row.Scan(&it.ID, &it.VariantID, &it.ExpiresOn, &it.Quantity, &it.LotCode, &it.AddedAt, &level)
	it.AlertLevel = expiration.AlertLevel(level)
	return it, err
}

func (p *Postgres) ListExpirations(ctx context.Context) ([]expiration.Item, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+expirationColumns+` FROM expiration_items ORDER BY expires_on ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []expiration.Item{}
	for rows.Next() {
		it, err := scanExpiration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (p *Postgres) GetExpiration(ctx context.Context, id string) (expiration.Item, error) {
	it, err := scanExpiration(p.pool.QueryRow(ctx, `SELECT `+expirationColumns+` FROM expiration_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return expiration.Item{}, expiration.ErrNotFound
	}
	return it, err
}

func (p *Postgres) PutExpiration(ctx context.Context, it expiration.Item) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO expiration_items (`+expirationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET variant_id = EXCLUDED.variant_id, expires_on = EXCLUDED.expires_on,
	quantity = EXCLUDED.quantity, lot_code = EXCLUDED.lot_code, alert_level = EXCLUDED.alert_level`,
		it.ID, it.VariantID, it.ExpiresOn, it.Quantity, it.LotCode, it.AddedAt, string(it.AlertLevel))
	return err
}

func (p *Postgres) DeleteExpiration(ctx context.Context, id string) error {
	return p.deleteByID(ctx, `DELETE FROM expiration_items WHERE id = $1`, id, expiration.ErrNotFound)
}

// DeleteDangling removes restock and expiration items whose variant no
// longer exists, in one transaction.
func (p *Postgres) DeleteDangling(ctx context.Context) (restockRemoved, expirationsRemoved int, err error) {
	err = db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		var err error
		restockRemoved, err = db.ExecCount(ctx, tx, `DELETE FROM restock_items r
WHERE NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.id = r.variant_id)`)
		if err != nil {
			return err
		}
		expirationsRemoved, err = db.ExecCount(ctx, tx, `DELETE FROM expiration_items e
WHERE NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.id = e.variant_id)`)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("localstore: delete dangling items: %w", err)
	}
	return restockRemoved, expirationsRemoved, nil
}

func (p *Postgres) deleteByID(ctx context.Context, query, id string, notFound error) error {
	n, err := db.ExecCount(ctx, p.pool, query, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
