package application

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentUpdate is returned by StockStore.Update when another writer
	// changed the record since it was read.
	ErrConcurrentUpdate = errors.New("stock was modified concurrently")

	ErrReservationInFlight = errors.New("reservation for order is already in flight")

	// ErrDuplicateSKU is returned by StockStore.Save when a record for the
	// sku already exists.
	ErrDuplicateSKU = errors.New("duplicate product sku")
)

const (
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeGateway       = "gateway_exception"
)

// BusinessError is an expected rejection from the CRUD surface.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

func ErrStockNotFound(sku string) error {
	return &BusinessError{Code: CodeNotFound, Message: fmt.Sprintf("Stock for sku=[%s] not found.", sku)}
}

func ErrStockAlreadyExists(sku string) error {
	return &BusinessError{Code: CodeAlreadyExists, Message: fmt.Sprintf("Stock for sku=[%s] already exists.", sku)}
}

func ErrProductNotFound(sku string) error {
	return &BusinessError{Code: CodeNotFound, Message: fmt.Sprintf("Product with sku=[%s] not found in Product-API.", sku)}
}

// GatewayError wraps a storage, broker or catalog failure.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *GatewayError) Unwrap() error { return e.Err }

func gatewayErr(op string, err error) error {
	var gerr *GatewayError
	if errors.As(err, &gerr) || errors.Is(err, ErrConcurrentUpdate) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}
