package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xelth-com/orderledger/internal/models"
	"gorm.io/gorm"
)

// DefaultMatchWindow is the largest order_date distance between counterparts
const DefaultMatchWindow = 5 * time.Minute

// MatchReason explains how a counterpart was chosen
type MatchReason string

const (
	MatchByAttributes MatchReason = "attributes" // equal attributes inside the window
	MatchByLegacyID   MatchReason = "legacy_id"  // same id in both ledgers
)

// Match is a counterpart found in the other ledger
type Match struct {
	Ledger models.Ledger
	ID     uint
	Reason MatchReason
	Delta  time.Duration
}

// MatchStrategy finds the counterpart of rec, which lives in ledger origin.
// A nil Match with a nil error means there is no counterpart.
type MatchStrategy interface {
	Match(ctx context.Context, tx *gorm.DB, rec *models.LedgerOrder, origin models.Ledger) (*Match, error)
}

// WindowMatcher matches on (inventory_ref, supplier_ref, quantity, variation)
// plus an order_date window. Matching is best-effort: the ledgers share no key,
// so two genuinely different orders with equal attributes placed inside the
// window are indistinguishable.
type WindowMatcher struct {
	Window           time.Duration
	LegacyIDFallback bool
}

// NewWindowMatcher creates a matcher; a zero window means DefaultMatchWindow
func NewWindowMatcher(window time.Duration, legacyIDFallback bool) *WindowMatcher {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	return &WindowMatcher{Window: window, LegacyIDFallback: legacyIDFallback}
}

// Match implements MatchStrategy
func (m *WindowMatcher) Match(ctx context.Context, tx *gorm.DB, rec *models.LedgerOrder, origin models.Ledger) (*Match, error) {
	target := origin.Counterpart()

	q := tx.WithContext(ctx).Table(target.Table()).
		Where("inventory_ref = ? AND supplier_ref = ? AND quantity = ?", rec.InventoryRef, rec.SupplierRef, rec.Quantity).
		Where("order_date BETWEEN ? AND ?", rec.OrderDate.Add(-m.Window).UTC(), rec.OrderDate.Add(m.Window).UTC())
	if rec.Variation == nil {
		q = q.Where("variation IS NULL")
	} else {
		q = q.Where("variation = ?", *rec.Variation)
	}

	var candidates []models.LedgerOrder
	if err := q.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("match candidates for %s order %d: %w", origin, rec.ID, err)
	}

	if best, delta, ok := SelectBest(rec, candidates, m.Window); ok {
		return &Match{Ledger: target, ID: best.ID, Reason: MatchByAttributes, Delta: delta}, nil
	}

	if !m.LegacyIDFallback {
		return nil, nil
	}
	var same models.LedgerOrder
	err := tx.WithContext(ctx).Table(target.Table()).Select("id").Where("id = ?", rec.ID).Take(&same).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("legacy id lookup for %s order %d: %w", origin, rec.ID, err)
	}
	return &Match{Ledger: target, ID: same.ID, Reason: MatchByLegacyID}, nil
}

// SelectBest applies the matching rules to an already loaded candidate list:
// exact attribute equality (NULL variation only equals NULL), |Δorder_date| ≤ window,
// smallest Δ wins, ties go to the smallest id.
func SelectBest(rec *models.LedgerOrder, candidates []models.LedgerOrder, window time.Duration) (models.LedgerOrder, time.Duration, bool) {
	type scored struct {
		order models.LedgerOrder
		delta time.Duration
	}
	var pool []scored
	for _, c := range candidates {
		if !sameAttributes(rec, &c) {
			continue
		}
		delta := absDuration(rec.OrderDate.Sub(c.OrderDate))
		if delta > window {
			continue
		}
		pool = append(pool, scored{order: c, delta: delta})
	}
	if len(pool) == 0 {
		return models.LedgerOrder{}, 0, false
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].delta != pool[j].delta {
			return pool[i].delta < pool[j].delta
		}
		return pool[i].order.ID < pool[j].order.ID
	})
	return pool[0].order, pool[0].delta, true
}

func sameAttributes(a, b *models.LedgerOrder) bool {
	if a.InventoryRef != b.InventoryRef || a.SupplierRef != b.SupplierRef || a.Quantity != b.Quantity {
		return false
	}
	if a.Variation == nil || b.Variation == nil {
		return a.Variation == nil && b.Variation == nil
	}
	return *a.Variation == *b.Variation
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
