package types

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other order side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// Valid reports whether the side is long or short.
func (s PositionSide) Valid() bool {
	return s == Long || s == Short
}

// Direction is +1 for long and -1 for short.
func (s PositionSide) Direction() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// EntrySide is the order side that opens a position of this direction.
func (s PositionSide) EntrySide() Side {
	if s == Short {
		return SideSell
	}
	return SideBuy
}

// ExitSide is the order side that reduces a position of this direction.
func (s PositionSide) ExitSide() Side {
	return s.EntrySide().Opposite()
}

// PositionSideFor maps an opening order side to the resulting position side.
func PositionSideFor(side Side) PositionSide {
	if side == SideSell {
		return Short
	}
	return Long
}
