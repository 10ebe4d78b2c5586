package types

import "time"

type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Tick is a single top-of-book market update. Bid and Ask may be zero when the
// feed only carries a last price.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// BidOrPrice returns the bid, falling back to the last price.
func (t Tick) BidOrPrice() float64 {
	if t.Bid > 0 {
		return t.Bid
	}
	return t.Price
}

// AskOrPrice returns the ask, falling back to the last price.
func (t Tick) AskOrPrice() float64 {
	if t.Ask > 0 {
		return t.Ask
	}
	return t.Price
}

// TickFromCandle turns a closed candle into a tick at its close.
func TickFromCandle(symbol string, c OHLCV) Tick {
	return Tick{
		Symbol:    symbol,
		Price:     c.Close,
		Bid:       c.Close,
		Ask:       c.Close,
		Volume:    c.Volume,
		Timestamp: c.Timestamp,
	}
}
