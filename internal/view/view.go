package view

import "github.com/fjod/shop_client/internal/domain"

// SellerGroup is one seller's slice of the cart with its subtotal.
type SellerGroup struct {
	SellerID   string
	SellerName string
	Items      []domain.CartEntry
	Subtotal   int64
}

// CartView is the user-facing cart: entries grouped by seller with per-group
// subtotals, plus the overall total and line count. It is never patched
// incrementally; Project rebuilds it from scratch.
type CartView struct {
	Groups    []SellerGroup
	Total     int64
	ItemCount int
}

// Project derives the view from the current entries. Pure: same entries in,
// same view out. Groups keep the entries' order of first appearance.
func Project(entries []domain.CartEntry) CartView {
	v := CartView{ItemCount: len(entries)}
	index := make(map[string]int)

	for _, entry := range entries {
		amount := int64(entry.Line.Quantity) * entry.Product.Price
		v.Total += amount

		i, ok := index[entry.Product.SellerID]
		if !ok {
			i = len(v.Groups)
			index[entry.Product.SellerID] = i
			v.Groups = append(v.Groups, SellerGroup{
				SellerID:   entry.Product.SellerID,
				SellerName: entry.Product.SellerName,
			})
		}
		v.Groups[i].Items = append(v.Groups[i].Items, entry)
		v.Groups[i].Subtotal += amount
	}

	return v
}
