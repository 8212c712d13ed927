package indicator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 35, p.MinLookback())
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	p.ShortMA = 30
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.MACDSlow = 10
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.MAType = "wma"
	assert.Error(t, p.Validate())
}

func TestSnapshotShortHistoryIsAbsent(t *testing.T) {
	calc := NewCalculator(DefaultParams())
	snap := calc.Snapshot([]float64{100, 101, 102}, []float64{1000, 1100, 1200})

	assert.Nil(t, snap.RSI)
	assert.Nil(t, snap.MACDLine)
	assert.Nil(t, snap.BollingerMiddle)
	assert.Nil(t, snap.LongMA)
	assert.False(t, snap.VolumeSpike)
	require.NotNil(t, snap.CurrentPrice)
	assert.Equal(t, 102.0, *snap.CurrentPrice)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "rsi")
	assert.Nil(t, decoded["rsi"])
}

func TestSnapshotFullHistory(t *testing.T) {
	closes := make([]float64, 60)
	volumes := make([]float64, 60)
	for i := range closes {
		closes[i] = 10000 + float64(i*10) + float64(i%4)*25
		volumes[i] = 50000
	}
	snap := NewCalculator(DefaultParams()).Snapshot(closes, volumes)

	require.NotNil(t, snap.RSI)
	require.NotNil(t, snap.MACDPrevHistogram)
	require.NotNil(t, snap.BollingerUpper)
	require.NotNil(t, snap.ShortMA)
	require.NotNil(t, snap.LongMA)
	assert.GreaterOrEqual(t, *snap.BollingerUpper, *snap.BollingerMiddle)
	assert.LessOrEqual(t, *snap.BollingerLower, *snap.BollingerMiddle)
	assert.False(t, snap.GoldenCross && snap.DeathCross)
}
