package domain

import (
	"fmt"
	"strings"
)

const (
	blankMessage    = "Field=[%s] should not be empty or null"
	positiveMessage = "Field=[%s] should be greater than zero"
	negativeMessage = "Field=[%s] should not be negative"
	domainSuffix    = "by domain stock"
)

// Stock is the available-quantity counter for a single product SKU.
// Quantity never goes below zero: Reserve is the only decrementing path.
type Stock struct {
	id       int64
	sku      string
	quantity int
	version  int64
}

// NewStock validates creation input and returns a record that has not been
// persisted yet. Every violation is reported, not just the first one.
func NewStock(sku string, quantity int) (Stock, error) {
	var violations []string
	if strings.TrimSpace(sku) == "" {
		violations = append(violations, violation(blankMessage, "product_sku"))
	}
	if quantity <= 0 {
		violations = append(violations, violation(positiveMessage, "available_quantity"))
	}
	if len(violations) > 0 {
		return Stock{}, &ValidationError{Violations: violations}
	}
	return Stock{sku: sku, quantity: quantity}, nil
}

// RestoreStock rebuilds a record read back from storage.
func RestoreStock(id int64, sku string, quantity int, version int64) Stock {
	return Stock{id: id, sku: sku, quantity: quantity, version: version}
}

func (s Stock) ID() int64 { return s.id }
func (s Stock) ProductSKU() string { return s.sku }
func (s Stock) Quantity() int { return s.quantity }
func (s Stock) Version() int64 { return s.version }

// Persisted reports whether storage has assigned an identity.
func (s Stock) Persisted() bool { return s.id != 0 }

// Reserve removes quantity units from availability. It returns false and
// leaves the record untouched when quantity is not positive or exceeds what
// is available.
func (s *Stock) Reserve(quantity int) bool {
	if quantity <= 0 || quantity > s.quantity {
		return false
	}
	s.quantity -= quantity
	return true
}

// Release gives quantity units back. Non-positive input is ignored.
func (s *Stock) Release(quantity int) {
	if quantity <= 0 {
		return
	}
	s.quantity += quantity
}

// Recount overwrites the counter after a manual stock take.
func (s *Stock) Recount(quantity int) error {
	if quantity < 0 {
		return &ValidationError{Violations: []string{violation(negativeMessage, "available_quantity")}}
	}
	s.quantity = quantity
	return nil
}

func violation(format, field string) string {
	return fmt.Sprintf(format, field) + " " + domainSuffix
}
