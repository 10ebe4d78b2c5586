package sizing

import (
	"testing"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput(m Method) Input {
	return Input{
		Method:              m,
		Balance:             10000,
		RiskPerTradePercent: 2,
		StopLossPercent:     2,
		EntryPrice:          50000,
	}
}

func TestCalculate_Methods(t *testing.T) {
	tests := []struct {
		name     string
		method   Method
		wantSize float64
	}{
		{"fixed", Fixed{Amount: 1500}, 1500},
		{"percentage", Percentage{}, 200},
		{"kelly", Kelly{WinRate: 0.6, AvgWinLoss: 2}, 4000},
		{"volatility expands", VolatilityAdjusted{CurrentVolatility: 0.04, BaseVolatility: 0.02}, 100},
		{"volatility contracts", VolatilityAdjusted{CurrentVolatility: 0.01, BaseVolatility: 0.02}, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Calculate(baseInput(tt.method))
			require.NoError(t, err)

			assert.InDelta(t, tt.wantSize, res.Size, 1e-9)
			assert.InDelta(t, tt.wantSize/50000, res.Quantity, 1e-12)
			assert.InDelta(t, tt.wantSize*0.02, res.RiskAmount, 1e-9)
			assert.Equal(t, tt.method.Name(), res.Method)
			assert.False(t, res.Capped)
		})
	}
}

func TestKellyScenario(t *testing.T) {
	f, err := KellyFraction(0.6, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, f, 1e-12)

	in := baseInput(Kelly{WinRate: 0.6, AvgWinLoss: 2})
	res, err := Calculate(in)
	require.NoError(t, err)
	assert.InDelta(t, in.Balance*0.4, res.Size, 1e-9)
}

func TestKelly_NegativeEdgeClampsToZero(t *testing.T) {
	res, err := Calculate(baseInput(Kelly{WinRate: 0.3, AvgWinLoss: 1}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Size)
	assert.Equal(t, 0.0, res.Quantity)
}

func TestCalculate_CapsAtMaxPositionSize(t *testing.T) {
	tests := []Method{
		Fixed{Amount: 5000},
		Kelly{WinRate: 0.6, AvgWinLoss: 2},
		VolatilityAdjusted{CurrentVolatility: 0.001, BaseVolatility: 0.02},
	}

	for _, m := range tests {
		t.Run(string(m.Name()), func(t *testing.T) {
			in := baseInput(m)
			in.MaxPositionSizePercent = 10

			res, err := Calculate(in)
			require.NoError(t, err)
			assert.InDelta(t, 1000.0, res.Size, 1e-9)
		})
	}
}

func TestCalculate_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"nil method", func(in *Input) { in.Method = nil }},
		{"zero balance", func(in *Input) { in.Balance = 0 }},
		{"negative entry", func(in *Input) { in.EntryPrice = -1 }},
		{"zero entry", func(in *Input) { in.EntryPrice = 0 }},
		{"zero stop loss", func(in *Input) { in.StopLossPercent = 0 }},
		{"zero risk for percentage", func(in *Input) { in.RiskPerTradePercent = 0 }},
		{"win rate zero", func(in *Input) { in.Method = Kelly{WinRate: 0, AvgWinLoss: 2} }},
		{"win rate above one", func(in *Input) { in.Method = Kelly{WinRate: 1.2, AvgWinLoss: 2} }},
		{"avg win loss zero", func(in *Input) { in.Method = Kelly{WinRate: 0.5, AvgWinLoss: 0} }},
		{"current volatility zero", func(in *Input) { in.Method = VolatilityAdjusted{CurrentVolatility: 0, BaseVolatility: 1} }},
		{"fixed amount zero", func(in *Input) { in.Method = Fixed{} }},
		{"max size above 100", func(in *Input) { in.MaxPositionSizePercent = 120 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput(Percentage{})
			tt.mutate(&in)

			_, err := Calculate(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, riskerrors.ErrInvalidParameter)
		})
	}
}
