package model

import "time"

// LocalCartEntry is one line of the guest cart kept in durable storage.
type LocalCartEntry struct {
	ProductID string          `json:"productId"`
	Product   ProductSnapshot `json:"product"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

func (e LocalCartEntry) CartItem() CartItem {
	return CartItem{Product: e.Product, Quantity: e.Quantity, AddedAt: e.AddedAt}
}

func CartItems(entries []LocalCartEntry) []CartItem {
	items := make([]CartItem, len(entries))
	for i, e := range entries {
		items[i] = e.CartItem()
	}
	return items
}

// CartItem is the in-memory cart line shared by the guest and the
// authenticated views of the cart.
type CartItem struct {
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity"`
	AddedAt  time.Time       `json:"addedAt"`
}

func (i CartItem) Subtotal() float64 {
	return i.Product.Price * float64(i.Quantity)
}

type ServerCartProduct struct {
	ID        string  `json:"_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Thumbnail string  `json:"thumbnail"`
	Stock     int     `json:"stock"`
}

type ServerCartItem struct {
	ID         string            `json:"_id"`
	Product    ServerCartProduct `json:"product"`
	Quantity   int               `json:"quantity"`
	Price      float64           `json:"price"`
	TotalPrice float64           `json:"totalPrice"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// CartItem converts a backend line into the in-memory representation.
// The line price wins over the product price when both are present.
func (s ServerCartItem) CartItem() CartItem {
	price := s.Price
	if price == 0 {
		price = s.Product.Price
	}

	added := s.CreatedAt
	if added.IsZero() {
		added = s.UpdatedAt
	}

	return CartItem{
		Product: ProductSnapshot{
			ID:        s.Product.ID,
			Name:      s.Product.Name,
			Price:     price,
			Thumbnail: s.Product.Thumbnail,
			Stock:     s.Product.Stock,
			Images:    []string{},
			IsActive:  true,
		},
		Quantity: s.Quantity,
		AddedAt:  added,
	}
}

// CartMirror is the authenticated cart cached locally for its owner.
type CartMirror struct {
	UserID string     `json:"userId"`
	Items  []CartItem `json:"items"`
}

// CartLine is the wire pair pushed to PUT /cart.
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CartData struct {
	Items      []ServerCartItem `json:"items"`
	TotalItems int              `json:"totalItems,omitempty"`
	TotalPrice float64          `json:"totalPrice,omitempty"`
}

type CartSyncRequest struct {
	Items []CartLine `json:"items"`
}

type CartSummary struct {
	Items        []CartItem `json:"items"`
	TotalItems   int        `json:"totalItems"`
	TotalPrice   float64    `json:"totalPrice"`
	TotalSavings float64    `json:"totalSavings"`
}

type CartExpiryInfo struct {
	IsExpired       bool       `json:"isExpired"`
	DaysUntilExpiry int        `json:"daysUntilExpiry"`
	ExpiryDate      *time.Time `json:"expiryDate,omitempty"`
}

func Summarize(items []CartItem) CartSummary {
	summary := CartSummary{Items: items}
	for _, item := range items {
		summary.TotalItems += item.Quantity
		summary.TotalPrice += item.Subtotal()

		original := item.Product.OriginalPrice
		if original == 0 {
			original = item.Product.Price
		}
		summary.TotalSavings += (original - item.Product.Price) * float64(item.Quantity)
	}

	return summary
}
