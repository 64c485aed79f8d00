// Package notify delivers price-change messages to item owners. Delivery is
// at-most-once: a failed send is logged and dropped, never queued or retried.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriceChange is one detected change, ready to be rendered for a user.
// EventID ties log lines about the same delivery together.
type PriceChange struct {
	EventID  string
	ItemName string
	Ref      string
	OldPrice float64
	NewPrice float64
	Delta    float64
}

func NewPriceChange(name, ref string, oldPrice, newPrice, delta float64) PriceChange {
	return PriceChange{
		EventID:  uuid.NewString(),
		ItemName: name,
		Ref:      ref,
		OldPrice: oldPrice,
		NewPrice: newPrice,
		Delta:    delta,
	}
}

// Message renders the user-facing notification text.
func (e PriceChange) Message() string {
	return fmt.Sprintf(
		"Price change!\n\nItem: %s\nRef: %s\n\nOld price: %.2f\nNew price: %.2f\n\nDifference: %+.2f",
		e.ItemName, e.Ref, e.OldPrice, e.NewPrice, e.Delta)
}

type Notifier interface {
	Notify(ctx context.Context, ownerID int64, event PriceChange) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// Used when no delivery credentials are configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, ownerID int64, event PriceChange) error {
	n.log.Info("price change notification",
		zap.String("event_id", event.EventID),
		zap.Int64("owner_id", ownerID),
		zap.String("ref", event.Ref),
		zap.Float64("old_price", event.OldPrice),
		zap.Float64("new_price", event.NewPrice),
		zap.Float64("delta", event.Delta),
	)
	return nil
}
