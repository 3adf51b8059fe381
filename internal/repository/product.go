package repository

import (
	"context"
	"fmt"
	"time"

	"mercari/monitor/internal/domain"
	"mercari/monitor/internal/filter"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ProductRepository interface {
	SaveProduct(ctx context.Context, product *domain.Product) error
}

type productRepository struct {
	db *pgxpool.Pool
}

func NewProductRepository(db *pgxpool.Pool) ProductRepository {
	return &productRepository{
		db: db,
	}
}

func (r *productRepository) SaveProduct(ctx context.Context, product *domain.Product) error {
	query := `
	INSERT INTO products (id, title, price, url, image_url, sold, condition, like_count, extracted_at, data)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id)
	DO UPDATE SET title = $2, price = $3, sold = $6, like_count = $8, extracted_at = $9, data = $10`
	_, err := r.db.Exec(ctx, query,
		product.ID,
		product.Title,
		product.Price,
		product.URL,
		product.ImageURL,
		product.Sold,
		product.Condition,
		product.LikeCount,
		product.ExtractedAt,
		product,
	)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", product.ID, err)
	}

	return nil
}

// seenRepository implements the filter's SeenStore on the append-only
// seen_items table.
type seenRepository struct {
	db *pgxpool.Pool
}

func NewSeenStore(db *pgxpool.Pool) filter.SeenStore {
	return &seenRepository{
		db: db,
	}
}

func (r *seenRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM seen_items WHERE item_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query seen_items for %s: %w", id, err)
	}
	return exists, nil
}

func (r *seenRepository) Put(ctx context.Context, id string, firstSeen time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO seen_items (item_id, first_seen) VALUES ($1, $2) ON CONFLICT (item_id) DO NOTHING`,
		id, firstSeen)
	if err != nil {
		return fmt.Errorf("failed to record seen item %s: %w", id, err)
	}
	return nil
}
