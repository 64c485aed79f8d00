package tracker

import "time"

// TrackedItem is one (user, catalog item) pairing under monitoring. Name is
// the last-observed display name and may be stale.
type TrackedItem struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	ExternalRef   string    `json:"external_ref"`
	Name          string    `json:"name"`
	LastPrice     float64   `json:"last_price"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type PriceObservation struct {
	ID         int64     `json:"id"`
	ItemID     int64     `json:"item_id"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}
