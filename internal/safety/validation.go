package safety

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

func invalid(code, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Code: code, Message: fmt.Sprintf(format, args...)}
}

var valid = ValidationResult{Valid: true}

// ValidatePrice rejects non-finite and implausible prices
func ValidatePrice(price float64, symbol string) ValidationResult {
	switch {
	case math.IsNaN(price):
		return invalid("INVALID_PRICE_NAN", "invalid price for %s: price is NaN", symbol)
	case math.IsInf(price, 0):
		return invalid("INVALID_PRICE_INF", "invalid price for %s: price is infinite", symbol)
	case price <= 0:
		return invalid("INVALID_PRICE_NEGATIVE", "invalid price %.8f for %s: price must be positive", price, symbol)
	case price > 1e10:
		return invalid("PRICE_OUT_OF_BOUNDS", "suspicious price %.8f for %s: exceeds reasonable bounds", price, symbol)
	case price < 1e-8:
		return invalid("PRICE_TOO_SMALL", "suspicious price %.10f for %s: below reasonable bounds", price, symbol)
	}
	return valid
}

// ValidateQuantity rejects non-finite and negative volumes. Zero is allowed.
func ValidateQuantity(quantity float64, symbol string) ValidationResult {
	switch {
	case math.IsNaN(quantity) || math.IsInf(quantity, 0):
		return invalid("INVALID_QUANTITY", "invalid quantity for %s: %v", symbol, quantity)
	case quantity < 0:
		return invalid("INVALID_QUANTITY_NEGATIVE", "invalid quantity %.8f for %s: must not be negative", quantity, symbol)
	case quantity > 1e12:
		return invalid("QUANTITY_OUT_OF_BOUNDS", "suspicious quantity %.8f for %s: exceeds reasonable bounds", quantity, symbol)
	}
	return valid
}

// ValidateSymbol checks a trading pair symbol such as BTCUSDT
func ValidateSymbol(symbol string) ValidationResult {
	if symbol == "" {
		return invalid("EMPTY_SYMBOL", "symbol cannot be empty")
	}
	if len(symbol) < 3 || len(symbol) > 20 {
		return invalid("INVALID_SYMBOL_LENGTH", "symbol %q has invalid length %d", symbol, len(symbol))
	}
	if strings.ToUpper(symbol) != symbol {
		return invalid("INVALID_SYMBOL_CASE", "symbol %q must be upper case", symbol)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return invalid("INVALID_SYMBOL_CHARS", "symbol %q contains invalid character %q", symbol, r)
		}
	}
	return valid
}

// ValidateTimestamp rejects zero timestamps and ones far in the future
func ValidateTimestamp(ts, now time.Time) ValidationResult {
	if ts.IsZero() {
		return invalid("ZERO_TIMESTAMP", "timestamp is zero")
	}
	if ts.After(now.Add(24 * time.Hour)) {
		return invalid("FUTURE_TIMESTAMP", "timestamp %s is more than a day ahead of %s", ts.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return valid
}

// ValidateTick checks a market tick before it reaches the matching engine.
// A crossed book (bid above ask) is rejected.
func ValidateTick(t types.Tick) ValidationResult {
	if r := ValidateSymbol(t.Symbol); !r.Valid {
		return r
	}
	if t.Price != 0 || (t.Bid == 0 && t.Ask == 0) {
		if r := ValidatePrice(t.Price, t.Symbol); !r.Valid {
			return r
		}
	}
	for _, side := range []float64{t.Bid, t.Ask} {
		if side == 0 {
			continue
		}
		if r := ValidatePrice(side, t.Symbol); !r.Valid {
			return r
		}
	}
	if t.Bid > 0 && t.Ask > 0 && t.Bid > t.Ask {
		return invalid("CROSSED_BOOK", "bid %.8f above ask %.8f for %s", t.Bid, t.Ask, t.Symbol)
	}
	return ValidateQuantity(t.Volume, t.Symbol)
}

// ValidateCandle checks an OHLCV bar
func ValidateCandle(symbol string, c types.OHLCV) ValidationResult {
	for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
		if r := ValidatePrice(p, symbol); !r.Valid {
			return r
		}
	}
	if c.High < c.Low || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
		return invalid("INCONSISTENT_CANDLE", "candle at %s for %s has high %.8f / low %.8f outside open/close",
			c.Timestamp.Format(time.RFC3339), symbol, c.High, c.Low)
	}
	return ValidateQuantity(c.Volume, symbol)
}
