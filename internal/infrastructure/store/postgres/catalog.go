package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/money"
	"github.com/lib/pq"
)

// Catalog reads products and their variants from PostgreSQL
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) ListActiveProducts(ctx context.Context) ([]product.Product, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, description, price_cents, category, active, created_at
		 FROM products WHERE active
		 ORDER BY name`,
	)
	if err != nil {
		return nil, store.ClassifyPostgres("list products", err)
	}
	defer rows.Close()

	var products []product.Product
	var ids []string
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ClassifyPostgres("list products", err)
	}
	if len(ids) == 0 {
		return products, nil
	}

	variants, err := c.variantsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
	}
	return products, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, description, price_cents, category, active, created_at
		 FROM products WHERE id = $1`,
		id,
	)
	p, err := scanProduct(row)
	if err != nil {
		return nil, err
	}
	variants, err := c.variantsFor(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Variants = variants[p.ID]
	return p, nil
}

// SaveProduct inserts or replaces a product and its variants
func (c *Catalog) SaveProduct(ctx context.Context, p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return store.ClassifyPostgres("begin save product", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price_cents, category, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, description = EXCLUDED.description,
		   price_cents = EXCLUDED.price_cents, category = EXCLUDED.category, active = EXCLUDED.active`,
		p.ID, p.Name, p.Description, p.Price.Cents(), p.Category, p.Active,
	)
	if err != nil {
		return store.ClassifyPostgres("save product", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = $1`, p.ID); err != nil {
		return store.ClassifyPostgres("clear variants", err)
	}
	for _, v := range p.Variants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO product_variants (id, product_id, label, price_cents) VALUES ($1, $2, $3, $4)`,
			v.ID, p.ID, v.Label, v.Price.Cents(),
		)
		if err != nil {
			return store.ClassifyPostgres("save variant", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return store.ClassifyPostgres("commit save product", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*product.Product, error) {
	var p product.Product
	var price int64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Category, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, store.ClassifyPostgres("scan product", err)
	}
	p.Price = money.FromCents(price)
	return &p, nil
}

func (c *Catalog) variantsFor(ctx context.Context, productIDs []string) (map[string][]product.Variant, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, product_id, label, price_cents
		 FROM product_variants WHERE product_id = ANY($1)
		 ORDER BY product_id, label`,
		pq.Array(productIDs),
	)
	if err != nil {
		return nil, store.ClassifyPostgres("list variants", err)
	}
	defer rows.Close()

	variants := make(map[string][]product.Variant)
	for rows.Next() {
		var v product.Variant
		var price int64
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Label, &price); err != nil {
			return nil, store.ClassifyPostgres("scan variant", err)
		}
		v.Price = money.FromCents(price)
		variants[v.ProductID] = append(variants[v.ProductID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ClassifyPostgres("list variants", err)
	}
	return variants, nil
}
