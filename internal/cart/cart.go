// Package cart mirrors the backend's cart for the session. Mutations
// are thin commands: each one round-trips to the backend and then
// refetches the full cart, so the local mirror is always a complete
// backend response, never a locally patched guess.
package cart

import "time"

// Line is one cart entry. LineTotal is computed locally from unit
// price and quantity; the backend's total field is not trusted for
// display.
type Line struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl"`
	Supplier  string `json:"supplier"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

// Snapshot is the cheap aggregate view badges and summaries render
// from. Count is the number of distinct lines, not the summed
// quantity.
type Snapshot struct {
	Count int   `json:"count"`
	Total int64 `json:"total"`
}

// cartItemPayload is one entry of the backend's cart response.
type cartItemPayload struct {
	MaHh     int64  `json:"maHh"`
	TenHH    string `json:"tenHH"`
	Hinh     string `json:"hinh"`
	DonGia   int64  `json:"donGia"`
	TenNCC   string `json:"tenNCC"`
	Quantity int64  `json:"quantity"`
	Total    int64  `json:"total"`
}

// addItemPayload is the body of the backend's add-to-cart call.
type addItemPayload struct {
	MaKh     string `json:"maKh"`
	MaHh     int64  `json:"maHh"`
	Quantity int64  `json:"quantity"`
	Ngay     string `json:"ngay"`
}

func toLine(p cartItemPayload) Line {
	return Line{
		ProductID: p.MaHh,
		Name:      p.TenHH,
		ImageURL:  p.Hinh,
		Supplier:  p.TenNCC,
		UnitPrice: p.DonGia,
		Quantity:  p.Quantity,
		LineTotal: p.DonGia * p.Quantity,
	}
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
