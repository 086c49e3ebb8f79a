package matching

import "errors"

var (
	// ErrInvalidInput is returned for non-positive price or quantity, an
	// unrecognized side, or an empty modification.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when no order with the given id is known.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyTerminal is returned for cancel/modify of a filled or cancelled order.
	ErrAlreadyTerminal = errors.New("order already terminal")
	// ErrInvalidQuantity is returned when a modification asks for a non-positive
	// quantity, or when a quantity would exceed the order maximum or overflow
	// its price level.
	ErrInvalidQuantity = errors.New("invalid quantity")
)
