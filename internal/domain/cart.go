package domain

import "fmt"

// LineItem is a product entry in the cart together with its quantity.
// The JSON field names are the persisted snapshot format.
type LineItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ItemInput describes a product being added to the cart. It carries no quantity;
// the cart decides that.
type ItemInput struct {
	ID       string  `json:"id" validate:"required,max=255"`
	Title    string  `json:"title" validate:"max=500"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// ToLineItem builds a new line item for the input with the given quantity.
func (in ItemInput) ToLineItem(quantity int) LineItem {
	return LineItem{
		ID:       in.ID,
		Title:    in.Title,
		ImageURL: in.ImageURL,
		Price:    in.Price,
		Quantity: quantity,
	}
}

// Products is the ordered cart state. Items keep insertion order and are unique by ID.
type Products []LineItem

// FindIndex returns the index of the line item with the given ID, or -1.
func (p Products) FindIndex(id string) int {
	for i := range p {
		if p[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with p.
// A nil receiver yields an empty, non-nil slice so it encodes as [].
func (p Products) Clone() Products {
	out := make(Products, len(p))
	copy(out, p)
	return out
}

// Validate reports the first line item that breaks the cart invariants:
// a non-empty ID unique within the cart and a non-negative quantity.
func (p Products) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for i, item := range p {
		if item.ID == "" {
			return fmt.Errorf("line item %d has no id", i)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("duplicate line item id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.Quantity < 0 {
			return fmt.Errorf("line item %q has negative quantity %d", item.ID, item.Quantity)
		}
	}
	return nil
}

// ItemCount returns the summed quantity of all line items.
func (p Products) ItemCount() int {
	var count int
	for _, item := range p {
		count += item.Quantity
	}
	return count
}

// TotalAmount returns the sum of price * quantity over all line items.
func (p Products) TotalAmount() float64 {
	var total float64
	for _, item := range p {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// ZeroQuantityPolicy decides what happens to a line item whose quantity drops to zero.
type ZeroQuantityPolicy string

const (
	// RetainZeroQuantity keeps the item in the cart at quantity 0.
	RetainZeroQuantity ZeroQuantityPolicy = "retain"
	// PruneZeroQuantity removes the item once its quantity reaches 0.
	PruneZeroQuantity ZeroQuantityPolicy = "prune"
)

// ParseZeroQuantityPolicy converts a configuration value into a policy.
func ParseZeroQuantityPolicy(s string) (ZeroQuantityPolicy, error) {
	switch p := ZeroQuantityPolicy(s); p {
	case RetainZeroQuantity, PruneZeroQuantity:
		return p, nil
	case "":
		return RetainZeroQuantity, nil
	default:
		return "", fmt.Errorf("unknown zero quantity policy %q", s)
	}
}

// Settle applies the policy to the item at index i after a decrement.
func (z ZeroQuantityPolicy) Settle(p Products, i int) Products {
	if z != PruneZeroQuantity || p[i].Quantity > 0 {
		return p
	}
	return append(p[:i], p[i+1:]...)
}
