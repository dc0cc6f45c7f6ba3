package cart

import (
	"context"

	"go-storefront-session/internal/model"
)

// Items returns the current cart lines.
func (s *Service) Items() []model.CartItem {
	return cloneItems(s.items.Get())
}

func (s *Service) Summary() model.CartSummary {
	return model.Summarize(s.Items())
}

func (s *Service) IsInCart(productID string) bool {
	return indexOf(s.items.Get(), productID) >= 0
}

func (s *Service) ItemQuantity(productID string) int {
	items := s.items.Get()
	if i := indexOf(items, productID); i >= 0 {
		return items[i].Quantity
	}

	return 0
}

// ItemCount, Total and IsEmpty read whichever store backs the cart, and
// agree for equal contents.
func (s *Service) ItemCount(ctx context.Context) int {
	if !s.session.IsAuthenticated() {
		return s.local.ItemCount(ctx)
	}

	return model.Summarize(s.items.Get()).TotalItems
}

func (s *Service) Total(ctx context.Context) float64 {
	if !s.session.IsAuthenticated() {
		return s.local.Total(ctx)
	}

	return model.Summarize(s.items.Get()).TotalPrice
}

func (s *Service) IsEmpty(ctx context.Context) bool {
	if !s.session.IsAuthenticated() {
		return s.local.IsEmpty(ctx)
	}

	return len(s.items.Get()) == 0
}

// ExpiryInfo only applies to guest carts; a signed-in cart never expires.
func (s *Service) ExpiryInfo(ctx context.Context) model.CartExpiryInfo {
	if s.session.IsAuthenticated() {
		return model.CartExpiryInfo{}
	}

	info := model.CartExpiryInfo{
		IsExpired:       s.local.IsExpired(ctx),
		DaysUntilExpiry: s.local.DaysUntilExpiry(ctx),
	}
	if expiry, ok := s.local.ExpiryDate(ctx); ok {
		info.ExpiryDate = &expiry
	}

	return info
}
