package checkout

import (
	"math"

	"github.com/vaidashi/storefront-api/internal/models"
)

// CartItem is a product in the cart with the price it was added at
type CartItem struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

// Cart is the per-session shopping cart. It is a plain value owned by one
// session and is not safe for concurrent use.
type Cart struct {
	items []CartItem
}

// NewCart creates a cart holding submitted items, merging repeated products.
// Quantities are kept as submitted so ValidateRequest can reject them.
func NewCart(items ...CartItem) *Cart {
	c := &Cart{}
	for _, item := range items {
		c.merge(item)
	}
	return c
}

func (c *Cart) indexOf(productID string) int {
	for i, item := range c.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add puts a product in the cart. Adding a product already present increases
// its quantity; a quantity below one counts as one.
func (c *Cart) Add(item CartItem) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	c.merge(item)
}

func (c *Cart) merge(item CartItem) {
	if i := c.indexOf(item.ProductID); i >= 0 {
		c.items[i].Quantity += item.Quantity
		return
	}

	c.items = append(c.items, item)
}

// Remove drops a product from the cart
func (c *Cart) Remove(productID string) {
	if i := c.indexOf(productID); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
}

// UpdateQuantity sets a line's quantity, never below one
func (c *Cart) UpdateQuantity(productID string, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	if i := c.indexOf(productID); i >= 0 {
		c.items[i].Quantity = quantity
	}
}

// Items returns a copy of the cart lines
func (c *Cart) Items() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Total is the sum of price times quantity, rounded to paisa
func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.items {
		total += item.Price * float64(item.Quantity)
	}
	return math.Round(total*100) / 100
}

// Count is the number of units in the cart
func (c *Cart) Count() int {
	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.items = nil
}

// Snapshot copies the cart into order items
func (c *Cart) Snapshot() models.OrderItems {
	items := make(models.OrderItems, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return items
}
