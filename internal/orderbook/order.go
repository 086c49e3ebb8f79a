package orderbook

import (
	"fmt"
	"time"
)

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order on s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	side, ok := ParseSide(string(b))
	if !ok {
		return fmt.Errorf("invalid side %q", string(b))
	}
	*s = side
	return nil
}

// ParseSide maps "buy"/"sell" to a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	}
	return 0, false
}

type Status int

const (
	Resting Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Resting:
		return "resting"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further fills or modifications can apply.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	status, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("invalid status %q", string(b))
	}
	*s = status
	return nil
}

func ParseStatus(s string) (Status, bool) {
	switch s {
	case "resting":
		return Resting, true
	case "partially_filled":
		return PartiallyFilled, true
	case "filled":
		return Filled, true
	case "cancelled":
		return Cancelled, true
	}
	return 0, false
}

// Order is a limit order. Price is in ticks to avoid float issues.
type Order struct {
	ID                uint64    `json:"id"`
	Symbol            string    `json:"symbol"`
	Side              Side      `json:"side"`
	Price             int64     `json:"price"`
	OriginalQuantity  int64     `json:"original_quantity"`
	RemainingQuantity int64     `json:"remaining_quantity"`
	Sequence          uint64    `json:"sequence"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// FIFO links, owned by the PriceLevel the order rests in.
	prev *Order
	next *Order
}

// Filled returns the quantity executed so far.
func (o *Order) Filled() int64 {
	return o.OriginalQuantity - o.RemainingQuantity
}

// Live reports whether the order may rest in the book.
func (o *Order) Live() bool {
	return !o.Status.Terminal() && o.RemainingQuantity > 0
}

// Clone returns a detached copy that shares no book links.
func (o *Order) Clone() *Order {
	c := *o
	c.prev, c.next = nil, nil
	return &c
}

// Trade is an execution between a resting and an incoming order.
type Trade struct {
	Sequence    uint64    `json:"sequence"`
	Symbol      string    `json:"symbol"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Price       int64     `json:"price"`
	Quantity    int64     `json:"quantity"`
	Aggressor   Side      `json:"aggressor"`
	Timestamp   time.Time `json:"timestamp"`
}
