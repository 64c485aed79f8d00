package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAlreadyTracked means the user already tracks this external reference.
	ErrAlreadyTracked = errors.New("tracker: item already tracked")
	// ErrItemNotFound means no tracked item exists with the given id.
	ErrItemNotFound = errors.New("tracker: item not found")
)

const uniqueViolation = "23505"

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// AddItem creates a tracked item together with its seed observation in one
// transaction, so an item without history is never observable.
func (r *Repository) AddItem(ctx context.Context, ownerID int64, ref, name string, price float64) (*TrackedItem, error) {
	now := time.Now()
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	item := &TrackedItem{
		OwnerID:       ownerID,
		ExternalRef:   ref,
		Name:          name,
		LastPrice:     price,
		LastCheckedAt: now,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO items (owner_id, external_ref, name, last_price, last_checked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		ownerID, ref, name, price, now).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadyTracked
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO price_history (item_id, price, observed_at) VALUES ($1, $2, $3)`,
		item.ID, price, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *Repository) ListItems(ctx context.Context, ownerID int64) ([]TrackedItem, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, owner_id, external_ref, name, last_price, last_checked_at, created_at
FROM items
WHERE owner_id = $1
ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// RemoveItem deletes the item; its history goes with it through the FK
// cascade, so both disappear atomically or not at all.
func (r *Repository) RemoveItem(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// UpdatePrice overwrites the stored price and appends the observation in one
// transaction.
func (r *Repository) UpdatePrice(ctx context.Context, itemID int64, price float64, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE items SET last_price = $2, last_checked_at = $3 WHERE id = $1`,
		itemID, price, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO price_history (item_id, price, observed_at) VALUES ($1, $2, $3)`,
		itemID, price, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkChecked advances last_checked_at without touching the price. Called
// after a successful observation that detected no change, so the scheduler
// can derive due-ness from the store alone.
func (r *Repository) MarkChecked(ctx context.Context, itemID int64, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE items SET last_checked_at = $2 WHERE id = $1`, itemID, at)
	return err
}

// AllItems is the scheduler's point-in-time snapshot of everything tracked.
func (r *Repository) AllItems(ctx context.Context) ([]TrackedItem, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, owner_id, external_ref, name, last_price, last_checked_at, created_at
FROM items
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *Repository) History(ctx context.Context, itemID int64) ([]PriceObservation, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, item_id, price, observed_at
FROM price_history
WHERE item_id = $1
ORDER BY observed_at DESC
LIMIT 200`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceObservation
	for rows.Next() {
		var obs PriceObservation
		if err := rows.Scan(&obs.ID, &obs.ItemID, &obs.Price, &obs.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// SetInterval upserts the owner's check interval; calling it twice with the
// same value leaves a single row.
func (r *Repository) SetInterval(ctx context.Context, ownerID int64, seconds int) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO settings (owner_id, interval_seconds) VALUES ($1, $2)
ON CONFLICT (owner_id) DO UPDATE SET interval_seconds = EXCLUDED.interval_seconds`,
		ownerID, seconds)
	return err
}

// Intervals returns every owner's configured interval in seconds.
func (r *Repository) Intervals(ctx context.Context) (map[int64]int, error) {
	rows, err := r.db.Query(ctx, `SELECT owner_id, interval_seconds FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var owner int64
		var seconds int
		if err := rows.Scan(&owner, &seconds); err != nil {
			return nil, err
		}
		out[owner] = seconds
	}
	return out, rows.Err()
}

func scanItems(rows pgx.Rows) ([]TrackedItem, error) {
	var res []TrackedItem
	for rows.Next() {
		var it TrackedItem
		if err := rows.Scan(&it.ID, &it.OwnerID, &it.ExternalRef, &it.Name,
			&it.LastPrice, &it.LastCheckedAt, &it.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}
