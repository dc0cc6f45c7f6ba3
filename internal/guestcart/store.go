// Package guestcart persists the cart of a visitor who is not signed in.
// The whole cart expires as a unit a fixed time after its latest write.
package guestcart

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/model"
	"go-storefront-session/internal/storage"
)

const (
	KeyCart   = "ecommerce_cart"
	KeyExpiry = "ecommerce_cart_expiry"
	KeyMirror = "ecommerce_cart_products"

	DefaultTTL = 30 * 24 * time.Hour
)

// Store is the only writer of the cart keys. Storage and decoding failures
// never reach the caller: the cart reads as empty and the failure is logged.
type Store struct {
	storage storage.Storage
	clock   clock.Clock
	ttl     time.Duration
	log     *slog.Logger

	mu sync.Mutex
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func New(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage: st,
		clock:   clock.Real(),
		ttl:     DefaultTTL,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "guest_cart")

	return s
}

// Cart returns the stored entries. A cart without a live expiry marker is
// purged and reads as empty.
func (s *Store) Cart(ctx context.Context) []model.LocalCartEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

// Add puts qty units of product in the cart, merging with an existing
// entry for the same product. A quantity below one is ignored.
func (s *Store) Add(ctx context.Context, product model.Product, qty int) []model.LocalCartEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.load(ctx)
	if qty < 1 || product.ID == "" {
		return cart
	}

	now := s.clock.Now().UTC()
	if i := indexOf(cart, product.ID); i >= 0 {
		cart[i].Quantity += qty
		cart[i].AddedAt = now
	} else {
		cart = append(cart, model.LocalCartEntry{
			ProductID: product.ID,
			Product:   product.Snapshot(),
			Quantity:  qty,
			AddedAt:   now,
		})
	}

	s.save(ctx, cart)
	return cart
}

// UpdateQuantity sets the quantity of a product already in the cart; zero
// or less removes it. Unknown products leave storage untouched.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, qty int) []model.LocalCartEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.load(ctx)
	i := indexOf(cart, productID)
	if i < 0 {
		return cart
	}

	if qty <= 0 {
		cart = append(cart[:i], cart[i+1:]...)
	} else {
		cart[i].Quantity = qty
		cart[i].AddedAt = s.clock.Now().UTC()
	}

	s.save(ctx, cart)
	return cart
}

func (s *Store) Remove(ctx context.Context, productID string) []model.LocalCartEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.load(ctx)
	filtered := make([]model.LocalCartEntry, 0, len(cart))
	for _, entry := range cart {
		if entry.ProductID != productID {
			filtered = append(filtered, entry)
		}
	}

	s.save(ctx, filtered)
	return filtered
}

// Clear drops the entries and the expiry marker.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(ctx)
}

func (s *Store) Item(ctx context.Context, productID string) (model.LocalCartEntry, bool) {
	cart := s.Cart(ctx)
	if i := indexOf(cart, productID); i >= 0 {
		return cart[i], true
	}

	return model.LocalCartEntry{}, false
}

func (s *Store) ItemCount(ctx context.Context) int {
	return model.Summarize(model.CartItems(s.Cart(ctx))).TotalItems
}

func (s *Store) Total(ctx context.Context) float64 {
	return model.Summarize(model.CartItems(s.Cart(ctx))).TotalPrice
}

func (s *Store) IsEmpty(ctx context.Context) bool {
	return len(s.Cart(ctx)) == 0
}

// IsExpired is true when the marker is missing, unreadable or past.
func (s *Store) IsExpired(ctx context.Context) bool {
	expiry, ok := s.ExpiryDate(ctx)
	if !ok {
		return true
	}

	return s.clock.Now().After(expiry)
}

func (s *Store) ExpiryDate(ctx context.Context) (time.Time, bool) {
	raw, ok := s.get(ctx, KeyExpiry)
	if !ok {
		return time.Time{}, false
	}

	expiry, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.log.Warn("cart expiry marker is unreadable", "value", raw, "error", err)
		return time.Time{}, false
	}

	return expiry, true
}

// DaysUntilExpiry rounds up to whole days and never goes below zero.
func (s *Store) DaysUntilExpiry(ctx context.Context) int {
	expiry, ok := s.ExpiryDate(ctx)
	if !ok {
		return 0
	}

	days := math.Ceil(expiry.Sub(s.clock.Now()).Hours() / 24)
	if days < 0 {
		return 0
	}

	return int(days)
}

// SaveMirror caches the signed-in user's cart so it can be shown when the
// backend is unreachable.
func (s *Store) SaveMirror(ctx context.Context, userID string, items []model.CartItem) {
	if items == nil {
		items = []model.CartItem{}
	}

	raw, err := json.Marshal(model.CartMirror{UserID: userID, Items: items})
	if err != nil {
		s.log.Error("failed to encode cart mirror", "error", err)
		return
	}

	if err := s.storage.Set(ctx, KeyMirror, string(raw)); err != nil {
		s.log.Error("failed to save cart mirror", "error", err)
	}
}

// LoadMirror returns the cached cart of userID, if there is one.
func (s *Store) LoadMirror(ctx context.Context, userID string) ([]model.CartItem, bool) {
	raw, ok := s.get(ctx, KeyMirror)
	if !ok {
		return nil, false
	}

	var mirror model.CartMirror
	if err := json.Unmarshal([]byte(raw), &mirror); err != nil {
		s.log.Warn("cart mirror is corrupted", "error", err)
		return nil, false
	}

	if mirror.UserID != userID {
		return nil, false
	}

	return mirror.Items, true
}

func (s *Store) ClearMirror(ctx context.Context) {
	if err := s.storage.Remove(ctx, KeyMirror); err != nil {
		s.log.Error("failed to remove cart mirror", "error", err)
	}
}

// load must be called with s.mu held.
func (s *Store) load(ctx context.Context) []model.LocalCartEntry {
	rawCart, hasCart := s.get(ctx, KeyCart)
	rawExpiry, hasExpiry := s.get(ctx, KeyExpiry)

	if !hasCart && !hasExpiry {
		return []model.LocalCartEntry{}
	}
	if !hasCart || !hasExpiry {
		s.purge(ctx)
		return []model.LocalCartEntry{}
	}

	expiry, err := time.Parse(time.RFC3339Nano, rawExpiry)
	if err != nil {
		s.log.Warn("cart expiry marker is unreadable; purging cart", "error", err)
		s.purge(ctx)
		return []model.LocalCartEntry{}
	}

	if s.clock.Now().After(expiry) {
		s.log.Info("guest cart expired; purging", "expired_at", expiry)
		s.purge(ctx)
		return []model.LocalCartEntry{}
	}

	var cart []model.LocalCartEntry
	if err := json.Unmarshal([]byte(rawCart), &cart); err != nil {
		s.log.Warn("guest cart is corrupted; purging", "error", err)
		s.purge(ctx)
		return []model.LocalCartEntry{}
	}

	valid := cart[:0]
	for _, entry := range cart {
		if entry.ProductID != "" && entry.Quantity >= 1 {
			valid = append(valid, entry)
		}
	}

	return valid
}

// save writes entries and slides the expiry marker forward.
func (s *Store) save(ctx context.Context, cart []model.LocalCartEntry) {
	if cart == nil {
		cart = []model.LocalCartEntry{}
	}

	raw, err := json.Marshal(cart)
	if err != nil {
		s.log.Error("failed to encode guest cart", "error", err)
		return
	}

	expiry := s.clock.Now().Add(s.ttl).UTC().Format(time.RFC3339Nano)
	if err := s.storage.SetMany(ctx, map[string]string{KeyCart: string(raw), KeyExpiry: expiry}); err != nil {
		s.log.Error("failed to save guest cart", "error", err)
	}
}

func (s *Store) purge(ctx context.Context) {
	if err := s.storage.Remove(ctx, KeyCart, KeyExpiry); err != nil {
		s.log.Error("failed to purge guest cart", "error", err)
	}
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	value, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		s.log.Warn("failed to read cart key", "key", key, "error", err)
		return "", false
	}

	return value, ok
}

func indexOf(cart []model.LocalCartEntry, productID string) int {
	for i, entry := range cart {
		if entry.ProductID == productID {
			return i
		}
	}

	return -1
}
