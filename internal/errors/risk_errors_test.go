package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskError_IsMatchesByCode(t *testing.T) {
	err := LimitExceeded("risk", "CheckNewPosition", "max positions reached (%d)", 2)

	assert.True(t, stderrors.Is(err, ErrLimitExceeded))
	assert.False(t, stderrors.Is(err, ErrInsufficientFunds))

	wrapped := fmt.Errorf("open failed: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrLimitExceeded))
	assert.Equal(t, CodeLimitExceeded, CodeOf(wrapped))
	assert.Equal(t, "max positions reached (2)", ReasonOf(wrapped))
}

func TestRiskError_ErrorString(t *testing.T) {
	err := InsufficientFunds("ledger", "Lock", 100, 50)
	assert.Contains(t, err.Error(), "INSUFFICIENT_FUNDS")
	assert.Contains(t, err.Error(), "ledger")
	assert.Equal(t, 100.0, err.Context["required"])

	plain := &RiskError{Code: CodeOrderNotFound, Message: "missing"}
	assert.Equal(t, "[ORDER_NOT_FOUND] missing", plain.Error())
}

func TestRiskError_IsDefect(t *testing.T) {
	assert.True(t, InvariantViolation("ledger", "ClosePosition", "negative remaining").IsDefect())
	assert.False(t, InvalidParameter("sizing", "Calculate", "bad").IsDefect())
}

func TestCodeOf_ForeignError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(stderrors.New("boom")))
	assert.Equal(t, "boom", ReasonOf(stderrors.New("boom")))
	assert.Equal(t, "", ReasonOf(nil))
}

func TestErrorStats(t *testing.T) {
	stats := NewErrorStats(2)
	stats.RecordError(InvalidParameter("a", "b", "c"))
	stats.RecordError(LimitExceeded("a", "b", "c"))
	stats.RecordError(LimitExceeded("a", "b", "c"))
	stats.RecordError(stderrors.New("ignored"))

	assert.Equal(t, 3, stats.TotalErrors)
	assert.Len(t, stats.RecentErrors, 2)
	assert.InDelta(t, 2.0/3.0, stats.GetErrorRate(CodeLimitExceeded), 1e-9)
	assert.True(t, stats.HasRecentErrors(CodeLimitExceeded, 2))
	assert.False(t, stats.HasRecentErrors(CodeInvalidParameter, 1))
}
