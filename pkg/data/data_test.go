package data

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

const sampleCSV = `timestamp,open,high,low,close,volume
2024-01-01 00:00:00,100,105,99,104,10
2024-01-01 01:00:00,104,106,103,105,12
2024-01-01 02:00:00,105,104,103,104.5,8
2024-01-01 03:00:00,abc,106,103,105,12
2024-01-01 04:00:00,105,107
2024-01-01 05:00:00,105,108,104,107,0
`

func TestCSVProvider_ReadSkipsBadRows(t *testing.T) {
	p := NewCSVProvider(nil)
	candles, err := p.Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Timestamp)
	assert.Equal(t, 104.0, candles[0].Close)
	assert.Equal(t, 105.0, candles[1].Close)
	assert.Equal(t, 0.0, candles[2].Volume, "zero volume is a valid candle")
	assert.NoError(t, p.ValidateData(candles))
}

func TestCSVProvider_UnixMillis(t *testing.T) {
	in := "open_time,o,h,l,c,v\n1704067200000,1,2,0.5,1.5,100\n"
	candles, err := NewCSVProviderWithFormat(UnixMillisCSVFormat, nil).Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Timestamp)
}

func TestCSVProvider_LoadMissingFile(t *testing.T) {
	_, err := NewCSVProvider(nil).LoadData(filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}

func TestValidateData(t *testing.T) {
	p := NewCSVProvider(nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := func(at time.Duration, low float64) types.OHLCV {
		return types.OHLCV{Timestamp: base.Add(at), Open: 10, High: 11, Low: low, Close: 10.5, Volume: 1}
	}

	assert.Error(t, p.ValidateData(nil))
	assert.Error(t, p.ValidateData([]types.OHLCV{c(0, 12)}), "low above open")
	assert.Error(t, p.ValidateData([]types.OHLCV{c(time.Hour, 9), c(0, 9)}), "out of order")
	assert.Error(t, p.ValidateData([]types.OHLCV{c(0, 9), c(0, 9)}), "duplicate")
	assert.NoError(t, p.ValidateData([]types.OHLCV{c(0, 9), c(time.Hour, 9)}))
}

func TestFilters(t *testing.T) {
	f := NewDefaultDataFilter()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var series []types.OHLCV
	for i := 0; i < 10; i++ {
		series = append(series, types.OHLCV{Timestamp: base.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}

	last := f.FilterByPeriod(series, 3*time.Hour)
	require.Len(t, last, 4)
	assert.Equal(t, 6.0, last[0].Close)
	assert.Len(t, f.FilterByPeriod(series, 0), 10)

	ranged := f.FilterByDateRange(series, base.Add(2*time.Hour), base.Add(4*time.Hour))
	assert.Len(t, ranged, 3)
	assert.Len(t, f.FilterByDateRange(series, time.Time{}, base.Add(time.Hour)), 2)

	shuffled := []types.OHLCV{series[2], series[0], series[2], series[1]}
	normalized := f.Normalize(shuffled)
	require.Len(t, normalized, 3)
	assert.NoError(t, f.ValidateTimeSequence(normalized))
	assert.Error(t, f.ValidateTimeSequence(shuffled))
	assert.Equal(t, 2.0, shuffled[0].Close, "input is not modified")
}

func TestCachedProvider_LoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	p := NewCachedProvider(NewCSVProvider(nil), nil)
	first, err := p.LoadData(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	second, err := p.LoadData(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.CacheSize())
}

func TestDataManager_LoadAndLocate(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bybit", "linear", "BTCUSDT", "60")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "candles.csv"), []byte(sampleCSV), 0644))

	dm := NewDataManager(DefaultCSVFormat, nil)
	path := dm.FindDataFile(root, "bybit", "btcusdt", "1h")
	require.Equal(t, filepath.Join(dir, "candles.csv"), path)
	assert.Empty(t, dm.FindDataFile(root, "bybit", "ETHUSDT", "1h"))

	candles, err := dm.Load(path, 2*time.Hour)
	require.NoError(t, err)
	assert.Len(t, candles, 1, "only the 05:00 candle is within two hours of the last")
}

func TestParseTrailingPeriod(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"7d", 7 * 24 * time.Hour, true},
		{"30days", 30 * 24 * time.Hour, true},
		{"168h", 168 * time.Hour, true},
		{"0d", 0, false},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTrailingPeriod(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"5m", 5 * time.Minute},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"15", 15 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"x", "0m", "5y", ""} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestFindDataFiles_NamesMissingSymbols(t *testing.T) {
	root := t.TempDir()
	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		dir := filepath.Join(root, "bybit", "spot", sym, "240")
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "candles.csv"), []byte(sampleCSV), 0644))
	}

	dm := NewDataManager(DefaultCSVFormat, nil)
	found, err := dm.FindDataFiles(root, "bybit", []string{"btcusdt", "ETHUSDT"}, "4h")
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, filepath.Join(root, "bybit", "spot", "ETHUSDT", "240", "candles.csv"), found["ETHUSDT"])

	found, err = dm.FindDataFiles(root, "bybit", []string{"SOLUSDT", "BTCUSDT", "ADAUSDT"}, "4h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADAUSDT, SOLUSDT")
	assert.Contains(t, found, "BTCUSDT")

	_, err = dm.FindDataFiles(root, "bybit", []string{"BTCUSDT"}, "sometimes")
	assert.Error(t, err)
}

func TestMerge_OrdersByTimeThenSymbol(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := func(h int, c float64) types.OHLCV {
		return types.OHLCV{Timestamp: base.Add(time.Duration(h) * time.Hour), Close: c}
	}

	merged := Merge(map[string][]types.OHLCV{
		"ETHUSDT": {bar(0, 10), bar(2, 12)},
		"BTCUSDT": {bar(0, 100), bar(1, 101), bar(2, 102)},
		"SOLUSDT": nil,
	})
	require.Len(t, merged, 5)

	var got []string
	for _, sc := range merged {
		got = append(got, sc.Symbol)
	}
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "BTCUSDT", "BTCUSDT", "ETHUSDT"}, got)
	assert.Equal(t, 101.0, merged[2].Candle.Close)
	assert.Empty(t, Merge(nil))
}

func TestLoadCompanions_ClipsToPrimaryRange(t *testing.T) {
	dir := t.TempDir()
	eth := filepath.Join(dir, "eth.csv")
	require.NoError(t, os.WriteFile(eth, []byte(sampleCSV), 0644))
	late := filepath.Join(dir, "late.csv")
	require.NoError(t, os.WriteFile(late, []byte("timestamp,open,high,low,close,volume\n2025-01-01 00:00:00,1,2,0.5,1.5,1\n"), 0644))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := []types.OHLCV{
		{Timestamp: base.Add(time.Hour), Close: 1},
		{Timestamp: base.Add(5 * time.Hour), Close: 1},
	}

	dm := NewDataManager(DefaultCSVFormat, nil)
	companions, err := dm.LoadCompanions(primary, map[string]string{"ETHUSDT": eth, "LATEUSDT": late})
	require.NoError(t, err)
	require.Contains(t, companions, "ETHUSDT")
	assert.NotContains(t, companions, "LATEUSDT", "no bars inside the primary range")
	require.Len(t, companions["ETHUSDT"], 2)
	assert.Equal(t, 105.0, companions["ETHUSDT"][0].Close)

	_, err = dm.LoadCompanions(nil, map[string]string{"ETHUSDT": eth})
	assert.Error(t, err)
	_, err = dm.LoadCompanions(primary, map[string]string{"XRPUSDT": filepath.Join(dir, "none.csv")})
	assert.Error(t, err)
}

func TestCachedProvider_RetriesFailedLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	p := NewCachedProvider(NewCSVProvider(nil), nil)

	_, err := p.LoadData(path)
	require.Error(t, err)
	assert.Equal(t, 0, p.CacheSize())

	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))
	candles, err := p.LoadData(path)
	require.NoError(t, err)
	assert.Len(t, candles, 3)
}

func TestCachedProvider_ConcurrentLoadsShareOneCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))
	p := NewCachedProvider(NewCSVProvider(nil), nil)

	var wg sync.WaitGroup
	results := make([][]types.OHLCV, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = p.LoadData(path)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Len(t, r, 3)
	}
	assert.Equal(t, 1, p.CacheSize())

	results[0][0].Close = -1
	again, err := p.LoadData(path)
	require.NoError(t, err)
	assert.Equal(t, 104.0, again[0].Close, "callers get their own copy")
}
