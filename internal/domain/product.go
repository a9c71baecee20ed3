package domain

// Product is the denormalized snapshot stored next to each cart line for
// offline rendering. Price is in minor currency units.
type Product struct {
	ID         string `json:"id"`
	SellerID   string `json:"sellerId"`
	SellerName string `json:"sellerName"`
	Title      string `json:"title"`
	ImageURL   string `json:"imageUrl"`
	Price      int64  `json:"price"`
	Stock      int    `json:"stock"`
}
