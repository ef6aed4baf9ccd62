package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Product is the snapshot of a product captured when a line is added.
type Product struct {
	ID        string   `json:"_id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	SalePrice *float64 `json:"salePrice,omitempty"`
	Images    []string `json:"images,omitempty"`
	Stock     int      `json:"stock"`
}

// UnitPrice is the sale price when present, the list price otherwise.
func (p Product) UnitPrice() decimal.Decimal {
	if p.SalePrice != nil {
		return decimal.NewFromFloat(*p.SalePrice)
	}
	return decimal.NewFromFloat(p.Price)
}

// Variation is the selected variant of a product and its chosen option values.
type Variation struct {
	VariantID string            `json:"variantId,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
}

// Item is one cart line.
type Item struct {
	ID        string     `json:"_id,omitempty"`
	Product   Product    `json:"product"`
	Quantity  int        `json:"quantity"`
	Variation *Variation `json:"variation"`
}

// Key is the line identity used for matching and merging.
func (i Item) Key() string {
	return Key(i.Product.ID, i.Variation)
}

// Cart is an ordered list of lines; insertion order is display order.
type Cart struct {
	Items []Item `json:"items"`
}

// Empty returns a cart with no lines whose items serialize as [] rather than null.
func Empty() Cart {
	return Cart{Items: []Item{}}
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone deep-copies the cart so callers cannot mutate engine state.
func (c Cart) Clone() Cart {
	items := make([]Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = it.clone()
	}
	return Cart{Items: items}
}

func (i Item) clone() Item {
	i.Product = i.Product.clone()
	i.Variation = i.Variation.Clone()
	return i
}

func (p Product) clone() Product {
	if p.SalePrice != nil {
		sp := *p.SalePrice
		p.SalePrice = &sp
	}
	if p.Images != nil {
		p.Images = append([]string(nil), p.Images...)
	}
	return p
}

// Clone returns an independent copy; nil stays nil.
func (v *Variation) Clone() *Variation {
	if v == nil {
		return nil
	}
	out := &Variation{VariantID: v.VariantID}
	if v.Options != nil {
		out.Options = make(map[string]string, len(v.Options))
		for k, val := range v.Options {
			out.Options[k] = val
		}
	}
	return out
}

// Total sums unit price times quantity over all lines.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Product.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ItemCount sums quantities over all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Key serializes (productID, variation). Lines with the same product but a
// different variation are distinct. encoding/json sorts map keys, so the
// option order does not matter.
func Key(productID string, v *Variation) string {
	if v != nil && v.VariantID == "" && len(v.Options) == 0 {
		v = nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("null")
	}
	return productID + "|" + string(b)
}
