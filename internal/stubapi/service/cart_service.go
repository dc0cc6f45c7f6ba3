package service

import (
	"net/http"
	"sync"
	"time"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/model"
	"go-storefront-session/pkg/apierror"
)

type cartLine struct {
	productID string
	quantity  int
	createdAt time.Time
	updatedAt time.Time
}

// CartService keeps one cart per user. PUT replaces the whole cart.
type CartService struct {
	catalog *Catalog
	clock   clock.Clock

	mu    sync.RWMutex
	carts map[string][]cartLine
}

func NewCartService(catalog *Catalog, c clock.Clock) *CartService {
	if c == nil {
		c = clock.Real()
	}
	return &CartService{catalog: catalog, clock: c, carts: map[string][]cartLine{}}
}

func (s *CartService) Get(userID string) model.CartData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.render(s.carts[userID])
}

// Replace validates every line before touching the stored cart. Duplicate
// product ids are summed; an unchanged line keeps its creation time.
func (s *CartService) Replace(userID string, lines []model.CartLine) (model.CartData, error) {
	merged := make([]model.CartLine, 0, len(lines))
	positions := map[string]int{}
	for _, line := range lines {
		if line.ProductID == "" {
			return model.CartData{}, apierror.New("BAD_REQUEST", "productId is required", "productId", http.StatusBadRequest)
		}
		if line.Quantity < 1 {
			return model.CartData{}, apierror.New("BAD_REQUEST", "quantity must be at least 1", line.ProductID, http.StatusBadRequest)
		}

		product, err := s.catalog.Get(line.ProductID)
		if err != nil {
			return model.CartData{}, apierror.New("UNKNOWN_PRODUCT", "product not found", line.ProductID, http.StatusUnprocessableEntity)
		}

		if i, ok := positions[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
		} else {
			positions[line.ProductID] = len(merged)
			merged = append(merged, line)
		}

		if q := merged[positions[line.ProductID]].Quantity; q > product.Stock {
			return model.CartData{}, apierror.New("OUT_OF_STOCK", "not enough stock", line.ProductID, http.StatusConflict)
		}
	}

	now := s.clock.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := map[string]cartLine{}
	for _, line := range s.carts[userID] {
		previous[line.productID] = line
	}

	next := make([]cartLine, 0, len(merged))
	for _, line := range merged {
		stored := cartLine{productID: line.ProductID, quantity: line.Quantity, createdAt: now, updatedAt: now}
		if old, ok := previous[line.ProductID]; ok {
			stored.createdAt = old.createdAt
			if old.quantity == line.Quantity {
				stored.updatedAt = old.updatedAt
			}
		}
		next = append(next, stored)
	}
	s.carts[userID] = next

	return s.render(next), nil
}

func (s *CartService) render(lines []cartLine) model.CartData {
	data := model.CartData{Items: make([]model.ServerCartItem, 0, len(lines))}
	for _, line := range lines {
		product, err := s.catalog.Get(line.productID)
		if err != nil {
			continue
		}

		total := product.Price * float64(line.quantity)
		data.Items = append(data.Items, model.ServerCartItem{
			ID: line.productID + ":" + line.createdAt.Format("20060102150405.000"),
			Product: model.ServerCartProduct{
				ID:        product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Thumbnail: product.MainImage,
				Stock:     product.Stock,
			},
			Quantity:   line.quantity,
			Price:      product.Price,
			TotalPrice: total,
			CreatedAt:  line.createdAt,
			UpdatedAt:  line.updatedAt,
		})
		data.TotalItems += line.quantity
		data.TotalPrice += total
	}

	return data
}
