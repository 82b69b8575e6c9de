package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the position lifecycle state. Transitions run one way:
// PENDING -> OPEN -> {CLOSED, CANCELLED}; the last two are terminal.
type Status int

const (
	Pending Status = iota
	Open
	Closed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Side is the position direction.
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Short {
		return "short"
	}
	return "long"
}

// Fill is one ledger entry of a scale-in or scale-out tranche.
type Fill struct {
	Size      float64   `json:"size" db:"size"`
	Price     float64   `json:"price" db:"price"`
	Timestamp time.Time `json:"ts" db:"ts"`
}

// Position is owned exclusively by the lifecycle manager while live. The
// average entry price and realized P&L follow the weighted-average-cost
// method: each exit realizes against the average entry price at that
// moment, and each entry re-averages the remaining size.
type Position struct {
	ID         string    `json:"id" db:"id"`
	Asset      string    `json:"asset" db:"asset"`
	Side       Side      `json:"side" db:"side"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	Size       float64   `json:"size" db:"size"`
	EntryTime  time.Time `json:"entry_time" db:"entry_time"`
	StopLoss   float64   `json:"stop_loss" db:"stop_loss"`
	TakeProfit float64   `json:"take_profit" db:"take_profit"` // 0 means no target
	Status     Status    `json:"status" db:"status"`

	Entries []Fill `json:"entries"`
	Exits   []Fill `json:"exits"`

	avgEntry    float64
	realizedPnL float64

	// One-shot lifecycle flags.
	BreakevenSet bool `json:"breakeven_set"`
	ScaledOut    bool `json:"scaled_out"`
	ScaledIn     bool `json:"scaled_in"`
}

// New creates a PENDING position with its initial entry recorded.
func New(asset string, side Side, size, price, stopLoss, takeProfit float64, now time.Time) (*Position, error) {
	if size <= 0 || price <= 0 {
		return nil, fmt.Errorf("invalid position: size %.6f, price %.4f", size, price)
	}
	return &Position{
		ID:         uuid.NewString(),
		Asset:      asset,
		Side:       side,
		EntryPrice: price,
		Size:       size,
		EntryTime:  now,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Status:     Pending,
		Entries:    []Fill{{Size: size, Price: price, Timestamp: now}},
		avgEntry:   price,
	}, nil
}

// Activate moves a PENDING position to OPEN.
func (p *Position) Activate() error {
	if p.Status != Pending {
		return fmt.Errorf("cannot open position %s from %s", p.ID, p.Status)
	}
	p.Status = Open
	return nil
}

// Cancel terminates a PENDING position that never filled.
func (p *Position) Cancel() error {
	if p.Status != Pending {
		return fmt.Errorf("cannot cancel position %s from %s", p.ID, p.Status)
	}
	p.Status = Cancelled
	return nil
}

// AverageEntry returns the current weighted-average entry price.
func (p *Position) AverageEntry() float64 { return p.avgEntry }

// RealizedPnL returns the accumulated realized profit and loss.
func (p *Position) RealizedPnL() float64 { return p.realizedPnL }

// UnrealizedPnL values the open size at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == Short {
		return (p.avgEntry - price) * p.Size
	}
	return (price - p.avgEntry) * p.Size
}

// AddFill scales into an OPEN position, re-averaging the entry price.
func (p *Position) AddFill(size, price float64, now time.Time) error {
	if p.Status != Open {
		return fmt.Errorf("cannot add to position %s in state %s", p.ID, p.Status)
	}
	if size <= 0 || price <= 0 {
		return fmt.Errorf("invalid fill: size %.6f, price %.4f", size, price)
	}

	p.avgEntry = (p.avgEntry*p.Size + price*size) / (p.Size + size)
	p.Size += size
	p.Entries = append(p.Entries, Fill{Size: size, Price: price, Timestamp: now})
	return nil
}

// ReduceFill exits part or all of an OPEN position. The realized P&L for
// the tranche is exit proceeds minus the average entry cost of the exited
// size; the position closes when no size remains.
func (p *Position) ReduceFill(size, price float64, now time.Time) (float64, error) {
	if p.Status != Open {
		return 0, fmt.Errorf("cannot reduce position %s in state %s", p.ID, p.Status)
	}
	if size <= 0 || price <= 0 {
		return 0, fmt.Errorf("invalid exit: size %.6f, price %.4f", size, price)
	}
	if size > p.Size {
		size = p.Size
	}

	var pnl float64
	if p.Side == Short {
		pnl = (p.avgEntry - price) * size
	} else {
		pnl = (price - p.avgEntry) * size
	}

	p.realizedPnL += pnl
	p.Size -= size
	p.Exits = append(p.Exits, Fill{Size: size, Price: price, Timestamp: now})

	if p.Size <= 1e-12 {
		p.Size = 0
		p.Status = Closed
	}
	return pnl, nil
}

// RaiseStop moves the stop up (long) or down (short) but never loosens it.
// Stop adjustments are monotonic, so a partially applied cycle is safe to
// leave in place.
func (p *Position) RaiseStop(newStop float64) bool {
	if p.Side == Short {
		if p.StopLoss == 0 || newStop < p.StopLoss {
			p.StopLoss = newStop
			return true
		}
		return false
	}
	if newStop > p.StopLoss {
		p.StopLoss = newStop
		return true
	}
	return false
}

// Record is the flat persisted form of a position. It carries the derived
// average entry and realized P&L so a restart rehydrates exactly.
type Record struct {
	ID           string    `json:"id" db:"id"`
	Asset        string    `json:"asset" db:"asset"`
	Side         string    `json:"side" db:"side"`
	Size         float64   `json:"size" db:"size"`
	AvgEntry     float64   `json:"avg_entry" db:"avg_entry"`
	RealizedPnL  float64   `json:"realized_pnl" db:"realized_pnl"`
	StopLoss     float64   `json:"stop_loss" db:"stop_loss"`
	TakeProfit   float64   `json:"take_profit" db:"take_profit"`
	Status       string    `json:"status" db:"status"`
	EntryTime    time.Time `json:"entry_time" db:"entry_time"`
	BreakevenSet bool      `json:"breakeven_set" db:"breakeven_set"`
	ScaledOut    bool      `json:"scaled_out" db:"scaled_out"`
	ScaledIn     bool      `json:"scaled_in" db:"scaled_in"`
}

// ToRecord flattens the position for persistence.
func (p *Position) ToRecord() Record {
	return Record{
		ID:           p.ID,
		Asset:        p.Asset,
		Side:         p.Side.String(),
		Size:         p.Size,
		AvgEntry:     p.avgEntry,
		RealizedPnL:  p.realizedPnL,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		Status:       p.Status.String(),
		EntryTime:    p.EntryTime,
		BreakevenSet: p.BreakevenSet,
		ScaledOut:    p.ScaledOut,
		ScaledIn:     p.ScaledIn,
	}
}

// FromRecord rehydrates a persisted position. The fill ledgers are not
// restored; only the aggregate state a restart needs.
func FromRecord(r Record) *Position {
	side := Long
	if r.Side == "short" {
		side = Short
	}
	return &Position{
		ID:           r.ID,
		Asset:        r.Asset,
		Side:         side,
		EntryPrice:   r.AvgEntry,
		Size:         r.Size,
		EntryTime:    r.EntryTime,
		StopLoss:     r.StopLoss,
		TakeProfit:   r.TakeProfit,
		Status:       parseStatus(r.Status),
		avgEntry:     r.AvgEntry,
		realizedPnL:  r.RealizedPnL,
		BreakevenSet: r.BreakevenSet,
		ScaledOut:    r.ScaledOut,
		ScaledIn:     r.ScaledIn,
	}
}

func parseStatus(s string) Status {
	switch s {
	case "pending":
		return Pending
	case "open":
		return Open
	case "cancelled":
		return Cancelled
	default:
		return Closed
	}
}

// StopHit reports whether the mark price has breached the protective stop.
func (p *Position) StopHit(price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == Short {
		return price >= p.StopLoss
	}
	return price <= p.StopLoss
}
