package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Watchlist kinds.
const (
	KindStock  = "stock"
	KindCrypto = "crypto"
)

type WatchlistItem struct {
	ID      string    `gorm:"primaryKey" json:"id"`
	UserID  string    `gorm:"uniqueIndex:idx_watchlist_entry;not null" json:"user_id"`
	Kind    string    `gorm:"uniqueIndex:idx_watchlist_entry;not null" json:"-"`
	Symbol  string    `gorm:"uniqueIndex:idx_watchlist_entry;not null" json:"symbol"`
	AddedAt time.Time `json:"added_at"`
}

// Watchlist is the per-user symbol list of one kind.
type Watchlist struct {
	db   *gorm.DB
	kind string
	now  func() time.Time
}

func (s *Store) Watchlist() *Watchlist {
	return &Watchlist{db: s.db, kind: KindStock, now: time.Now}
}

func (s *Store) CryptoWatchlist() *Watchlist {
	return &Watchlist{db: s.db, kind: KindCrypto, now: time.Now}
}

// List returns the user's items, oldest first.
func (w *Watchlist) List(ctx context.Context, user string) ([]WatchlistItem, error) {
	items := []WatchlistItem{}
	err := w.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", user, w.kind).
		Order("added_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list %s watchlist: %w", w.kind, err)
	}
	return items, nil
}

// Add upper-cases symbol and inserts it. Adding a symbol already on the list
// returns the existing item.
func (w *Watchlist) Add(ctx context.Context, user, symbol string) (WatchlistItem, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return WatchlistItem{}, errors.New("symbol is required")
	}

	var existing WatchlistItem
	err := w.db.WithContext(ctx).
		First(&existing, "user_id = ? AND kind = ? AND symbol = ?", user, w.kind, symbol).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return WatchlistItem{}, fmt.Errorf("lookup %s: %w", symbol, err)
	}

	item := WatchlistItem{
		ID:      uuid.NewString(),
		UserID:  user,
		Kind:    w.kind,
		Symbol:  symbol,
		AddedAt: w.now().UTC(),
	}
	if err := w.db.WithContext(ctx).Create(&item).Error; err != nil {
		return WatchlistItem{}, fmt.Errorf("add %s: %w", symbol, err)
	}
	return item, nil
}

// Remove deletes symbol from the user's list. Removing an absent symbol is not an error.
func (w *Watchlist) Remove(ctx context.Context, user, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	err := w.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND symbol = ?", user, w.kind, symbol).
		Delete(&WatchlistItem{}).Error
	if err != nil {
		return fmt.Errorf("remove %s: %w", symbol, err)
	}
	return nil
}
