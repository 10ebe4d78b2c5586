// Package correlation keeps rolling price windows per symbol and gates new
// positions on how correlated they are with what is already open.
package correlation

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/indicators"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

const component = "correlation"

// MinSharedReturns is the least number of overlapping returns for a defined correlation
const MinSharedReturns = 3

// Config holds the guard limits
type Config struct {
	Period                 int     `json:"period"`
	Threshold              float64 `json:"threshold"`
	MaxCorrelatedPositions int     `json:"max_correlated_positions"`
}

// Guard maintains price history and answers correlation queries.
// Safe for concurrent use.
type Guard struct {
	mu      sync.RWMutex
	cfg     Config
	history map[string][]types.OHLCV
	logger  *logger.Logger
}

// CorrelatedPosition is an open symbol correlated with a candidate
type CorrelatedPosition struct {
	Symbol      string  `json:"symbol"`
	Correlation float64 `json:"correlation"`
}

// Pair is the correlation of two symbols, A < B
type Pair struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Correlation float64 `json:"correlation"`
	Defined     bool    `json:"defined"`
}

// Key returns the canonical "A|B" key of the pair
func (p Pair) Key() string {
	return PairKey(p.A, p.B)
}

// PairKey orders two symbols and joins them
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Matrix is a symmetric correlation matrix over Symbols in sorted order.
// Undefined entries are NaN; the diagonal is 1.
type Matrix struct {
	Symbols []string    `json:"symbols"`
	Values  [][]float64 `json:"-"`
}

// Get returns the correlation of two symbols in the matrix
func (m Matrix) Get(a, b string) (float64, bool) {
	i := sort.SearchStrings(m.Symbols, a)
	j := sort.SearchStrings(m.Symbols, b)
	if i >= len(m.Symbols) || j >= len(m.Symbols) || m.Symbols[i] != a || m.Symbols[j] != b {
		return 0, false
	}
	v := m.Values[i][j]
	return v, !math.IsNaN(v)
}

// NewGuard creates a correlation guard
func NewGuard(cfg Config, log *logger.Logger) *Guard {
	if cfg.Period < MinSharedReturns+1 {
		cfg.Period = MinSharedReturns + 1
	}
	return &Guard{
		cfg:     cfg,
		history: make(map[string][]types.OHLCV),
		logger:  log,
	}
}

// UpdateConfig swaps the limits. Windows longer than the new period are trimmed.
func (g *Guard) UpdateConfig(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cfg.Period < MinSharedReturns+1 {
		cfg.Period = MinSharedReturns + 1
	}
	g.cfg = cfg
	for symbol, h := range g.history {
		g.history[symbol] = trim(h, cfg.Period)
	}
}

// Config returns the current limits
func (g *Guard) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// AddCandle appends a candle to the symbol's window, evicting the oldest
// beyond Period.
func (g *Guard) AddCandle(symbol string, c types.OHLCV) {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := g.history[symbol]
	if n := len(h); n > 0 && !c.Timestamp.IsZero() && !c.Timestamp.After(h[n-1].Timestamp) {
		// Same or older bar: replace the last close instead of growing the window.
		h[n-1] = c
		return
	}
	g.history[symbol] = trim(append(h, c), g.cfg.Period)
}

// AddPrice records a tick price as a flat candle
func (g *Guard) AddPrice(symbol string, price float64, ts time.Time) {
	if price <= 0 {
		return
	}
	g.AddCandle(symbol, types.OHLCV{Open: price, High: price, Low: price, Close: price, Timestamp: ts})
}

// History returns a copy of the symbol's window
func (g *Guard) History(symbol string) []types.OHLCV {
	g.mu.RLock()
	defer g.mu.RUnlock()

	h := g.history[symbol]
	out := make([]types.OHLCV, len(h))
	copy(out, h)
	return out
}

// Correlation returns the Pearson correlation of close-to-close returns over
// the bars both windows share by timestamp. ok is false when undefined.
func (g *Guard) Correlation(a, b string) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.correlationLocked(a, b)
}

func (g *Guard) correlationLocked(a, b string) (float64, bool) {
	if a == b {
		return 1, len(g.history[a]) > MinSharedReturns
	}
	ca, cb := aligned(g.history[a], g.history[b])
	return Pearson(indicators.Returns(ca), indicators.Returns(cb))
}

// aligned returns the closes of both windows at the timestamps they share,
// oldest first. Windows fed at different rates only meet on common bars.
// Windows carrying zero timestamps fall back to the common tail by index.
func aligned(a, b []types.OHLCV) ([]float64, []float64) {
	if !stamped(a) || !stamped(b) {
		return closes(a), closes(b)
	}
	byTime := make(map[int64]float64, len(b))
	for _, c := range b {
		byTime[c.Timestamp.UnixNano()] = c.Close
	}
	var ca, cb []float64
	for _, c := range a {
		if v, ok := byTime[c.Timestamp.UnixNano()]; ok {
			ca = append(ca, c.Close)
			cb = append(cb, v)
		}
	}
	return ca, cb
}

func stamped(h []types.OHLCV) bool {
	for _, c := range h {
		if c.Timestamp.IsZero() {
			return false
		}
	}
	return true
}

// CorrelatedWith lists the open symbols (one entry per open position) whose
// correlation with candidate is above the threshold. Positions on the
// candidate symbol itself are not counted.
func (g *Guard) CorrelatedWith(candidate string, openSymbols []string) []CorrelatedPosition {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []CorrelatedPosition
	for _, symbol := range openSymbols {
		if symbol == candidate {
			continue
		}
		corr, ok := g.correlationLocked(candidate, symbol)
		if !ok {
			continue
		}
		if corr > g.cfg.Threshold {
			out = append(out, CorrelatedPosition{Symbol: symbol, Correlation: corr})
		}
	}
	return out
}

// Check rejects candidate with CorrelationLimitExceeded when the number of
// correlated open positions already reached MaxCorrelatedPositions.
func (g *Guard) Check(candidate string, openSymbols []string) error {
	correlated := g.CorrelatedWith(candidate, openSymbols)
	limit := g.Config().MaxCorrelatedPositions
	if limit <= 0 || len(correlated) < limit {
		return nil
	}

	symbols := make([]string, len(correlated))
	for i, c := range correlated {
		symbols[i] = c.Symbol
	}
	g.logger.LogWarning("Correlation Guard", "%s rejected: correlated with %v", candidate, symbols)

	return riskerrors.CorrelationLimitExceeded(component, "Check",
		"%s is correlated with %d open positions %v (limit %d)", candidate, len(correlated), symbols, limit).
		WithContext("correlated", correlated)
}

// Symbols returns the tracked symbols in sorted order
func (g *Guard) Symbols() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.symbolsLocked()
}

func (g *Guard) symbolsLocked() []string {
	symbols := make([]string, 0, len(g.history))
	for s := range g.history {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Matrix computes the full correlation matrix over every tracked symbol
func (g *Guard) Matrix() Matrix {
	g.mu.RLock()
	defer g.mu.RUnlock()

	symbols := g.symbolsLocked()
	values := make([][]float64, len(symbols))
	for i := range values {
		values[i] = make([]float64, len(symbols))
	}
	for i := range symbols {
		values[i][i] = 1
		for j := i + 1; j < len(symbols); j++ {
			c, ok := g.correlationLocked(symbols[i], symbols[j])
			if !ok {
				c = math.NaN()
			}
			values[i][j], values[j][i] = c, c
		}
	}
	return Matrix{Symbols: symbols, Values: values}
}

// Pairs returns every symbol pair once, ordered by A then B
func (g *Guard) Pairs() []Pair {
	m := g.Matrix()
	var pairs []Pair
	for i := range m.Symbols {
		for j := i + 1; j < len(m.Symbols); j++ {
			v := m.Values[i][j]
			pairs = append(pairs, Pair{
				A:           m.Symbols[i],
				B:           m.Symbols[j],
				Correlation: v,
				Defined:     !math.IsNaN(v),
			})
		}
	}
	return pairs
}

// Pearson computes the correlation over the common tail of a and b, which
// callers align beforehand.
// ok is false with fewer than MinSharedReturns points or zero variance.
func Pearson(a, b []float64) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < MinSharedReturns {
		return 0, false
	}
	a, b = a[len(a)-n:], b[len(b)-n:]

	var ma, mb float64
	for i := 0; i < n; i++ {
		ma += a[i]
		mb += b[i]
	}
	ma /= float64(n)
	mb /= float64(n)

	var num, da, db float64
	for i := 0; i < n; i++ {
		x, y := a[i]-ma, b[i]-mb
		num += x * y
		da += x * x
		db += y * y
	}
	den := math.Sqrt(da * db)
	if den == 0 || math.IsNaN(den) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, num/den)), true
}

func closes(h []types.OHLCV) []float64 {
	out := make([]float64, len(h))
	for i, c := range h {
		out[i] = c.Close
	}
	return out
}

func trim(h []types.OHLCV, n int) []types.OHLCV {
	if len(h) <= n {
		return h
	}
	out := make([]types.OHLCV, n)
	copy(out, h[len(h)-n:])
	return out
}

// String renders a pair for logs
func (p Pair) String() string {
	if !p.Defined {
		return fmt.Sprintf("%s: undefined", p.Key())
	}
	return fmt.Sprintf("%s: %.3f", p.Key(), p.Correlation)
}
