package events

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func fill(l *Log, n int) {
	for i := 0; i < n; i++ {
		typ := PositionOpened
		if i%2 == 1 {
			typ = PositionClosed
		}
		l.Append(RiskEvent{
			Type:       typ,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Symbol:     fmt.Sprintf("SYM%d", i%3),
			PositionID: fmt.Sprintf("pos-%d", i),
			Message:    fmt.Sprintf("event %d", i),
		})
	}
}

func TestAppend_FillsDefaults(t *testing.T) {
	l := NewLog(10)
	l.now = func() time.Time { return base }

	ev := l.Append(RiskEvent{Type: RiskWarning, Message: "close to limit"})
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, base, ev.Timestamp)
	assert.Equal(t, SeverityInfo, ev.Severity)
	assert.Equal(t, 1, l.Len())
}

func TestAppend_DataIsCopied(t *testing.T) {
	l := NewLog(10)
	data := map[string]interface{}{"pnl": 10.0}
	l.Append(RiskEvent{Type: PositionClosed, Data: data})
	data["pnl"] = 99.0

	assert.Equal(t, 10.0, l.All()[0].Data["pnl"])
}

func TestRingEvictsOldestFirst(t *testing.T) {
	l := NewLog(5)
	fill(l, 8)

	all := l.All()
	require.Len(t, all, 5)
	assert.Equal(t, "event 3", all[0].Message)
	assert.Equal(t, "event 7", all[4].Message)
	assert.Equal(t, 3, l.Evicted())
	assert.Equal(t, 5, l.Capacity())
}

func TestQueries(t *testing.T) {
	l := NewLog(100)
	fill(l, 9)

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "event 6", recent[0].Message)
	assert.Equal(t, "event 8", recent[2].Message)
	assert.Len(t, l.Recent(0), 9)

	assert.Len(t, l.ByType(PositionOpened), 5)
	assert.Len(t, l.ByType(PositionClosed), 4)
	assert.Len(t, l.BySymbol("SYM0"), 3)
	assert.Len(t, l.ByPosition("pos-4"), 1)

	between := l.Between(base.Add(2*time.Minute), base.Add(5*time.Minute))
	require.Len(t, between, 3)
	assert.Equal(t, "event 2", between[0].Message)

	counts := l.CountByType()
	assert.Equal(t, 5, counts[PositionOpened])
}

func TestSetLimitKeepsNewest(t *testing.T) {
	l := NewLog(10)
	fill(l, 10)

	l.SetLimit(4)
	all := l.All()
	require.Len(t, all, 4)
	assert.Equal(t, "event 6", all[0].Message)

	l.Append(RiskEvent{Type: RiskWarning, Message: "next"})
	all = l.All()
	assert.Equal(t, "event 7", all[0].Message)
	assert.Equal(t, "next", all[3].Message)

	l.SetLimit(20)
	assert.Len(t, l.All(), 4)
}

func TestJSONSnapshotAndRestore(t *testing.T) {
	l := NewLog(10)
	fill(l, 3)

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var decoded []RiskEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "event 0", decoded[0].Message)

	restored := NewLog(2)
	restored.Restore(decoded)
	all := restored.All()
	require.Len(t, all, 2)
	assert.Equal(t, "event 1", all[0].Message)

	restored.Clear()
	assert.Equal(t, 0, restored.Len())
}
