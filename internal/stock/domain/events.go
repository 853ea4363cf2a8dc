package domain

// ReserveCommand asks for quantity units of a product to be held for an order.
// It may be delivered more than once for the same OrderID.
type ReserveCommand struct {
	OrderID    string `json:"orderId"`
	ProductSKU string `json:"productSku"`
	Quantity   int    `json:"quantity"`
}

// ReleaseCommand gives previously reserved units back.
type ReleaseCommand struct {
	ProductSKU string `json:"productSku"`
	Quantity   int    `json:"quantity"`
}

// ReservationOutcome reports whether a reserve command decremented stock.
type ReservationOutcome struct {
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
}
