package service

import (
	"net/http"
	"sort"

	"go-storefront-session/internal/model"
	"go-storefront-session/pkg/apierror"
)

// Catalog is the read-only product list the reference backend prices carts
// against.
type Catalog struct {
	products map[string]model.Product
}

func NewCatalog(products []model.Product) *Catalog {
	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &Catalog{products: byID}
}

func DefaultCatalog() *Catalog {
	return NewCatalog([]model.Product{
		{ID: "prod-mug", Name: "Ceramic Mug", Description: "350ml stoneware mug", Price: 12.5, OriginalPrice: 15, Category: "kitchen", Images: []string{"/images/mug.jpg"}, MainImage: "/images/mug.jpg", Stock: 120, IsActive: true},
		{ID: "prod-plant", Name: "Snake Plant", Description: "Low light indoor plant", Price: 25.5, Category: "garden", Images: []string{"/images/plant.jpg"}, MainImage: "/images/plant.jpg", Stock: 30, IsActive: true},
		{ID: "prod-lamp", Name: "Desk Lamp", Description: "Dimmable LED lamp", Price: 39.99, OriginalPrice: 49.99, Category: "office", Images: []string{"/images/lamp.jpg"}, MainImage: "/images/lamp.jpg", Stock: 15, IsActive: true, IsFeatured: true},
		{ID: "prod-notebook", Name: "Dot Grid Notebook", Description: "A5, 160 pages", Price: 8, Category: "office", Images: []string{"/images/notebook.jpg"}, MainImage: "/images/notebook.jpg", Stock: 300, IsActive: true},
	})
}

func (c *Catalog) Get(id string) (model.Product, error) {
	p, ok := c.products[id]
	if !ok || !p.IsActive {
		return model.Product{}, apierror.New("NOT_FOUND", "product not found", id, http.StatusNotFound)
	}
	return p, nil
}

func (c *Catalog) List() []model.Product {
	out := make([]model.Product, 0, len(c.products))
	for _, p := range c.products {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
