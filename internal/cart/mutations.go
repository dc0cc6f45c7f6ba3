package cart

import (
	"context"

	"go-storefront-session/internal/model"
)

// Add puts qty units of product in the cart. A quantity below one is
// ignored.
func (s *Service) Add(ctx context.Context, product model.Product, qty int) {
	if qty < 1 || product.ID == "" {
		return
	}

	if !s.session.IsAuthenticated() {
		s.setFromLocal(s.local.Add(ctx, product, qty))
		return
	}

	s.mutate(ctx, func(items []model.CartItem) []model.CartItem {
		if i := indexOf(items, product.ID); i >= 0 {
			items[i].Quantity += qty
			return items
		}

		return append(items, model.CartItem{
			Product:  product.Snapshot(),
			Quantity: qty,
			AddedAt:  s.clock.Now().UTC(),
		})
	})
}

func (s *Service) Remove(ctx context.Context, productID string) {
	if !s.session.IsAuthenticated() {
		s.setFromLocal(s.local.Remove(ctx, productID))
		return
	}

	s.mutate(ctx, func(items []model.CartItem) []model.CartItem {
		out := items[:0]
		for _, item := range items {
			if item.Product.ID != productID {
				out = append(out, item)
			}
		}
		return out
	})
}

// UpdateQuantity sets the quantity of a product in the cart; zero or less
// removes it.
func (s *Service) UpdateQuantity(ctx context.Context, productID string, qty int) {
	if qty <= 0 {
		s.Remove(ctx, productID)
		return
	}

	if !s.session.IsAuthenticated() {
		s.setFromLocal(s.local.UpdateQuantity(ctx, productID, qty))
		return
	}

	// Until the server cart is loaded the item may exist only there.
	if user := s.session.CurrentUser(); user != nil {
		s.mu.Lock()
		missing := s.loadedFor == user.ID && indexOf(s.items.Get(), productID) < 0
		s.mu.Unlock()
		if missing {
			return
		}
	}

	s.mutate(ctx, func(items []model.CartItem) []model.CartItem {
		if i := indexOf(items, productID); i >= 0 {
			items[i].Quantity = qty
		}
		return items
	})
}

func (s *Service) Clear(ctx context.Context) {
	if !s.session.IsAuthenticated() {
		s.local.Clear(ctx)
		s.setFromLocal(nil)
		return
	}

	s.mutate(ctx, func([]model.CartItem) []model.CartItem {
		return []model.CartItem{}
	})
}

// mutate applies fn to the signed-in cart and publishes the result. fn is
// also kept as an unconfirmed change until a push succeeds, so a fetch that
// lands meanwhile gets it replayed on top. Until the server cart has been
// loaded nothing is pushed and the mirror is left alone.
func (s *Service) mutate(ctx context.Context, fn func([]model.CartItem) []model.CartItem) {
	user := s.session.CurrentUser()
	if user == nil {
		return
	}

	s.mu.Lock()
	s.items.Set(apply(s.items.Get(), fn))
	s.pending = append(s.pending, pendingChange{userID: user.ID, apply: fn})
	if s.loadedFor == user.ID {
		s.local.SaveMirror(ctx, user.ID, s.items.Get())
	}
	s.mu.Unlock()

	s.worker.enqueueOnce(jobSync, s.sync)
}

func (s *Service) setFromLocal(entries []model.LocalCartEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Set(model.CartItems(entries))
}

// pendingChange is a signed-in edit the backend has not confirmed yet.
type pendingChange struct {
	userID string
	apply  func([]model.CartItem) []model.CartItem
}

func apply(items []model.CartItem, fns ...func([]model.CartItem) []model.CartItem) []model.CartItem {
	out := cloneItems(items)
	for _, fn := range fns {
		out = fn(out)
	}
	if out == nil {
		out = []model.CartItem{}
	}
	return out
}

func indexOf(items []model.CartItem, productID string) int {
	for i, item := range items {
		if item.Product.ID == productID {
			return i
		}
	}

	return -1
}

func cloneItems(items []model.CartItem) []model.CartItem {
	out := make([]model.CartItem, len(items))
	copy(out, items)
	return out
}
