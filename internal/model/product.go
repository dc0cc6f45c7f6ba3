package model

type Product struct {
	ID             string            `json:"_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Price          float64           `json:"price"`
	OriginalPrice  float64           `json:"originalPrice,omitempty"`
	Category       string            `json:"category"`
	Brand          string            `json:"brand,omitempty"`
	Images         []string          `json:"images"`
	MainImage      string            `json:"mainImage"`
	Thumbnail      string            `json:"thumbnail,omitempty"`
	Stock          int               `json:"stock"`
	IsActive       bool              `json:"isActive"`
	IsFeatured     bool              `json:"isFeatured,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty"`
	Rating         float64           `json:"rating,omitempty"`
	Discount       float64           `json:"discount,omitempty"`
}

// ProductSnapshot holds the product fields a cart needs for display and
// pricing. It is copied into cart entries so a cart stays renderable after
// the product is edited or deleted upstream.
type ProductSnapshot struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         float64  `json:"price"`
	OriginalPrice float64  `json:"originalPrice,omitempty"`
	Category      string   `json:"category"`
	Images        []string `json:"images"`
	MainImage     string   `json:"mainImage"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	Stock         int      `json:"stock"`
	IsActive      bool     `json:"isActive"`
	Discount      float64  `json:"discount,omitempty"`
}

func (p Product) Snapshot() ProductSnapshot {
	images := make([]string, len(p.Images))
	copy(images, p.Images)

	return ProductSnapshot{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Category:      p.Category,
		Images:        images,
		MainImage:     p.MainImage,
		Thumbnail:     p.Thumbnail,
		Stock:         p.Stock,
		IsActive:      p.IsActive,
		Discount:      p.Discount,
	}
}
