package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/krx-quant/internal/scanner"
	"github.com/yourusername/krx-quant/internal/strategy"
)

type fakeScanner struct {
	results []scanner.ScanResult
	err     error
	calls   int
}

func (f *fakeScanner) ScanMarket(ctx context.Context, scanType strategy.SignalType, minConfidence float64, limit int) ([]scanner.ScanResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seoul(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestScheduleMarketScanValidates(t *testing.T) {
	s := NewScheduler(&fakeScanner{}, time.UTC, quietLogger())

	_, err := s.ScheduleMarketScan(ScanJob{Cron: "0 16 * * 1-5", ScanType: strategy.SignalHold})
	assert.Error(t, err)

	_, err = s.ScheduleMarketScan(ScanJob{Cron: "not a cron", ScanType: strategy.SignalBuy})
	assert.Error(t, err)

	id, err := s.ScheduleMarketScan(ScanJob{Cron: "0 16 * * 1-5", ScanType: strategy.SignalBuy})
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, s.Entries(), 1)
}

func TestRunScanStoresResults(t *testing.T) {
	fake := &fakeScanner{results: []scanner.ScanResult{
		{StockCode: "005930", Signal: strategy.SignalBuy, Confidence: 0.8},
		{StockCode: "000660", Signal: strategy.SignalBuy, Confidence: 0.6},
	}}
	s := NewScheduler(fake, time.UTC, quietLogger())
	fixed := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	results, err := s.RunScan(context.Background(), ScanJob{ScanType: strategy.SignalBuy, MinConfidence: 0.5, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	last, at := s.LastResults()
	assert.Equal(t, fake.results, last)
	assert.Equal(t, fixed, at)
}

func TestRunScanKeepsPreviousResultsOnError(t *testing.T) {
	fake := &fakeScanner{results: []scanner.ScanResult{{StockCode: "005930"}}}
	s := NewScheduler(fake, time.UTC, quietLogger())

	_, err := s.RunScan(context.Background(), ScanJob{ScanType: strategy.SignalBuy})
	require.NoError(t, err)

	fake.err = errors.New("provider down")
	_, err = s.RunScan(context.Background(), ScanJob{ScanType: strategy.SignalBuy})
	assert.Error(t, err)

	last, _ := s.LastResults()
	assert.Len(t, last, 1)

	at, n, lastErr := s.LastScan()
	assert.False(t, at.IsZero())
	assert.Equal(t, 1, n)
	assert.EqualError(t, lastErr, "provider down")

	fake.err = nil
	_, err = s.RunScan(context.Background(), ScanJob{ScanType: strategy.SignalBuy})
	require.NoError(t, err)
	_, _, lastErr = s.LastScan()
	assert.NoError(t, lastErr)
}

func TestStartStopLifecycle(t *testing.T) {
	s := NewScheduler(&fakeScanner{}, seoul(t), quietLogger())

	assert.Error(t, s.Start(), "no jobs scheduled")
	assert.True(t, s.GetNextRun().IsZero())

	id, err := s.ScheduleMarketScan(ScanJob{Cron: "0 16 * * 1-5", ScanType: strategy.SignalSell})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())

	next := s.GetNextRun()
	require.False(t, next.IsZero())
	assert.Equal(t, 16, next.In(seoul(t)).Hour())

	assert.Error(t, s.RemoveJob(id))
	_, err = s.ScheduleMarketScan(ScanJob{Cron: "0 9 * * *", ScanType: strategy.SignalBuy})
	assert.Error(t, err)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop())

	require.NoError(t, s.RemoveJob(id))
	assert.Empty(t, s.Entries())
}
