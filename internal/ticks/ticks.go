// Package ticks converts decimal prices to integer tick counts and back. The
// matching core only ever compares ticks.
package ticks

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var maxTicks = decimal.NewFromInt(math.MaxInt64)

// Converter quantizes prices to a fixed tick size.
type Converter struct {
	size   decimal.Decimal
	places int32
}

// NewConverter parses a positive tick size such as "0.01".
func NewConverter(tickSize string) (*Converter, error) {
	size, err := decimal.NewFromString(tickSize)
	if err != nil {
		return nil, fmt.Errorf("parse tick size %q: %w", tickSize, err)
	}
	if !size.IsPositive() {
		return nil, fmt.Errorf("tick size must be positive, got %s", size)
	}
	places := -size.Exponent()
	if places < 0 {
		places = 0
	}
	return &Converter{size: size, places: places}, nil
}

func MustConverter(tickSize string) *Converter {
	c, err := NewConverter(tickSize)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Converter) TickSize() decimal.Decimal {
	return c.size
}

// ToTicks converts price to a tick count. The price must be positive and an
// exact multiple of the tick size.
func (c *Converter) ToTicks(price decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, fmt.Errorf("price must be positive, got %s", price)
	}
	if !price.Mod(c.size).IsZero() {
		return 0, fmt.Errorf("price %s is not a multiple of tick size %s", price, c.size)
	}
	n := price.Div(c.size)
	if n.GreaterThan(maxTicks) {
		return 0, fmt.Errorf("price %s is out of range", price)
	}
	return n.IntPart(), nil
}

// Parse is ToTicks for a decimal string.
func (c *Converter) Parse(s string) (int64, error) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return c.ToTicks(price)
}

func (c *Converter) FromTicks(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Mul(c.size)
}

// Format renders n ticks with the tick size's number of decimal places.
func (c *Converter) Format(n int64) string {
	return c.FromTicks(n).StringFixed(c.places)
}
