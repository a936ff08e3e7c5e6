// internal/jobs/reaper/reaper.go
package reaper

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"gorm.io/gorm"
)

// Notifier sends the abandonment reminder. Sends happen outside the
// reap transaction and never block or fail the sweep.
type Notifier interface {
	SendAbandonmentReminder(ctx context.Context, c *cart.Cart) error
}

// Reaper sweeps stale active carts: expired stock holds are released
// and carts idle past the abandonment threshold are marked abandoned.
type Reaper struct {
	db        *gorm.DB
	inventory *inventory.Service
	notifier  Notifier
	interval  time.Duration
	threshold time.Duration
	batchSize int
	logger    *logrus.Logger
}

// NewReaper creates a new abandoned cart reaper. notifier may be nil.
func NewReaper(db *gorm.DB, inv *inventory.Service, notifier Notifier, cfg *config.Config, logger *logrus.Logger) *Reaper {
	return &Reaper{
		db:        db,
		inventory: inv,
		notifier:  notifier,
		interval:  cfg.Checkout.ReapInterval,
		threshold: cfg.Checkout.AbandonAfter,
		batchSize: 100,
		logger:    logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.WithFields(logrus.Fields{
		"interval":  r.interval,
		"threshold": r.threshold,
	}).Info("Abandoned cart reaper started")

	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-ctx.Done():
			r.logger.Info("Abandoned cart reaper stopped")
			return
		}
	}
}

// Sweep runs one pass. Exported so an admin endpoint or test can
// trigger it directly.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.threshold)

	var carts []cart.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").Preload("Coupons").
		Where("status = ? AND updated_at < ?", cart.CartStatusActive, cutoff).
		Limit(r.batchSize).
		Find(&carts).Error
	if err != nil {
		r.logger.WithError(err).Error("Failed to query stale carts")
		return
	}

	for i := range carts {
		c := &carts[i]
		notify, err := r.reapOne(ctx, c)
		if err != nil {
			r.logger.WithField("cart_id", c.ID).WithError(err).Error("Failed to reap cart")
			continue
		}
		if notify && r.notifier != nil {
			if err := r.notifier.SendAbandonmentReminder(ctx, c); err != nil {
				r.logger.WithField("cart_id", c.ID).WithError(err).Warn("Failed to send abandonment reminder")
			}
		}
	}

	if err := r.inventory.CheckReservationLeaks(ctx); err != nil {
		r.logger.WithError(err).Error("Reservation leak check failed")
	}
}

// errCartChanged aborts a reap transaction whose cart-status guard
// missed, rolling back anything the transaction did.
var errCartChanged = errors.New("cart changed state during reap")

// reapOne marks the cart abandoned and releases its holds in a single
// transaction. The status update runs first as a guard: a cart the
// reconciler concurrently converted (its commit already settled the
// holds) misses the guard and the whole transaction rolls back, so no
// second decrement ever commits. The email flag flips only on the
// first reap of a cart, so the reminder goes out at most once. Returns
// whether the reminder should be sent.
func (r *Reaper) reapOne(ctx context.Context, c *cart.Cart) (bool, error) {
	notify := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status": cart.CartStatusAbandoned,
		}
		if c.Email != "" && !c.AbandonmentEmailSent {
			updates["abandonment_email_sent"] = true
		}

		result := tx.Model(&cart.Cart{}).
			Where("id = ? AND status = ?", c.ID, cart.CartStatusActive).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errCartChanged
		}

		if err := r.inventory.ReleaseCartStockTx(tx, c); err != nil {
			return err
		}

		if _, flagged := updates["abandonment_email_sent"]; flagged {
			c.AbandonmentEmailSent = true
			notify = true
		}
		c.Status = cart.CartStatusAbandoned

		r.logger.WithFields(logrus.Fields{
			"cart_id":    c.ID,
			"session_id": c.SessionID,
			"items":      len(c.Items),
		}).Info("Cart marked abandoned")
		return nil
	})
	if errors.Is(err, errCartChanged) {
		// Cart changed hands since the query, leave it alone.
		return false, nil
	}
	return notify, err
}
