package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/krx-quant/internal/indicator"
	"github.com/yourusername/krx-quant/internal/marketdata"
	"github.com/yourusername/krx-quant/internal/models"
	"github.com/yourusername/krx-quant/internal/signal"
	"github.com/yourusername/krx-quant/internal/strategy"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetDailyPrices(ctx context.Context, code string, count int) ([]models.PriceBar, error) {
	args := m.Called(ctx, code, count)
	bars, _ := args.Get(0).([]models.PriceBar)
	return bars, args.Error(1)
}

func (m *mockProvider) GetPriceHistory(ctx context.Context, code string, start, end time.Time) ([]models.PriceBar, error) {
	args := m.Called(ctx, code, start, end)
	bars, _ := args.Get(0).([]models.PriceBar)
	return bars, args.Error(1)
}

func (m *mockProvider) GetCurrentPrice(ctx context.Context, code string) (*models.Quote, error) {
	args := m.Called(ctx, code)
	q, _ := args.Get(0).(*models.Quote)
	return q, args.Error(1)
}

// priceCodedStrategy derives the verdict from the last close: closes below 1000
// are BUY with confidence close/100, closes from 1000 are SELL with confidence
// (close-1000)/100.
type priceCodedStrategy struct {
	lookback int
}

func (s priceCodedStrategy) Name() string                          { return "price_coded" }
func (s priceCodedStrategy) MinLookback() int                      { return s.lookback }
func (s priceCodedStrategy) GetParameters() map[string]interface{} { return nil }
func (s priceCodedStrategy) Evaluate(_ indicator.Snapshot, window []float64) strategy.Verdict {
	last := window[len(window)-1]
	if last >= 1000 {
		return strategy.Verdict{Type: strategy.SignalSell, Confidence: (last - 1000) / 100, Reasons: []string{"coded sell"}}
	}
	return strategy.Verdict{Type: strategy.SignalBuy, Confidence: last / 100, Reasons: []string{"coded buy"}}
}

func bars(closes ...float64) []models.PriceBar {
	d := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{Date: d.AddDate(0, 0, i), Close: c, Volume: 1000}
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

func newGenerator(t *testing.T, lookback int) *signal.Generator {
	t.Helper()
	gen, err := signal.NewGenerator(indicator.NewCalculator(indicator.DefaultParams()), priceCodedStrategy{lookback: lookback}, quietLogger())
	require.NoError(t, err)
	return gen
}

// universe with last closes chosen so BUY confidences are 0.9, 0.7, 0.7, 0.4 and
// one SELL at 0.8
var testUniverse = []models.Stock{
	{Code: "000660", Name: "SK하이닉스", Market: models.MarketKOSPI},
	{Code: "005930", Name: "삼성전자", Market: models.MarketKOSPI},
	{Code: "035420", Name: "NAVER", Market: models.MarketKOSPI},
	{Code: "035720", Name: "카카오", Market: models.MarketKOSPI},
	{Code: "086520", Name: "에코프로", Market: models.MarketKOSDAQ},
}

var testCloses = map[string]float64{
	"000660": 70,
	"005930": 90,
	"035420": 40,
	"035720": 70,
	"086520": 1080,
}

func newTestScanner(t *testing.T, provider marketdata.Provider, concurrency int) *Scanner {
	t.Helper()
	s, err := NewScanner(provider, newGenerator(t, 2), testUniverse, Config{HistoryBars: 3, Concurrency: concurrency}, quietLogger())
	require.NoError(t, err)
	return s
}

func staticProvider(t *testing.T) *marketdata.StaticProvider {
	t.Helper()
	p := marketdata.NewStaticProvider()
	for code, last := range testCloses {
		require.NoError(t, p.SetBars(code, bars(50, 60, last)))
	}
	return p
}

func TestScanMarketRejectsInvalidArguments(t *testing.T) {
	s := newTestScanner(t, &mockProvider{}, 1)
	ctx := context.Background()

	_, err := s.ScanMarket(ctx, strategy.SignalHold, 0.5, 10)
	assert.ErrorIs(t, err, ErrInvalidScanType)

	_, err = s.ScanMarket(ctx, strategy.SignalBuy, 1.5, 10)
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	_, err = s.ScanMarket(ctx, strategy.SignalBuy, -0.1, 10)
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	_, err = s.ScanMarket(ctx, strategy.SignalBuy, 0.5, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestScanMarketFiltersAndSorts(t *testing.T) {
	s := newTestScanner(t, staticProvider(t), 4)

	results, err := s.ScanMarket(context.Background(), strategy.SignalBuy, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	codes := []string{results[0].StockCode, results[1].StockCode, results[2].StockCode}
	assert.Equal(t, []string{"005930", "000660", "035720"}, codes)
	for i, r := range results {
		assert.Equal(t, strategy.SignalBuy, r.Signal)
		assert.GreaterOrEqual(t, r.Confidence, 0.5)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Confidence, r.Confidence)
		}
	}
	assert.Equal(t, "삼성전자", results[0].StockName)
	assert.Equal(t, 90.0, results[0].CurrentPrice)
	assert.Equal(t, []string{"coded buy"}, results[0].Reasoning)
}

func TestScanMarketSell(t *testing.T) {
	s := newTestScanner(t, staticProvider(t), 2)

	results, err := s.ScanMarket(context.Background(), strategy.SignalSell, 0.0, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "086520", results[0].StockCode)
	assert.InDelta(t, 0.8, results[0].Confidence, 1e-9)
}

func TestScanMarketLimit(t *testing.T) {
	s := newTestScanner(t, staticProvider(t), 3)

	results, err := s.ScanMarket(context.Background(), strategy.SignalBuy, 0.0, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "005930", results[0].StockCode)
	assert.Equal(t, "000660", results[1].StockCode)
}

func TestScanMarketIsDeterministic(t *testing.T) {
	s := newTestScanner(t, staticProvider(t), 8)

	first, err := s.ScanMarket(context.Background(), strategy.SignalBuy, 0.0, 10)
	require.NoError(t, err)
	want, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := s.ScanMarket(context.Background(), strategy.SignalBuy, 0.0, 10)
		require.NoError(t, err)
		got, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
}

func TestScanMarketSkipsFailingSymbols(t *testing.T) {
	provider := &mockProvider{}
	for _, stock := range testUniverse {
		switch stock.Code {
		case "005930":
			provider.On("GetDailyPrices", mock.Anything, stock.Code, 3).
				Return(nil, marketdata.NewProviderError("kis", marketdata.ErrCodeServerError, "boom", nil))
		case "000660":
			// out of order bars fail validation
			b := bars(50, 60, 70)
			b[0], b[2] = b[2], b[0]
			provider.On("GetDailyPrices", mock.Anything, stock.Code, 3).Return(b, nil)
		default:
			provider.On("GetDailyPrices", mock.Anything, stock.Code, 3).Return(bars(50, 60, testCloses[stock.Code]), nil)
		}
	}

	s := newTestScanner(t, provider, 2)
	results, err := s.ScanMarket(context.Background(), strategy.SignalBuy, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "035720", results[0].StockCode)
	provider.AssertExpectations(t)
}

func TestScanMarketShortHistoryIsHold(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetDailyPrices", mock.Anything, mock.Anything, 3).Return(bars(90), nil)

	s := newTestScanner(t, provider, 2)
	results, err := s.ScanMarket(context.Background(), strategy.SignalBuy, 0.0, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScanMarketCanceled(t *testing.T) {
	s := newTestScanner(t, staticProvider(t), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ScanMarket(ctx, strategy.SignalBuy, 0.5, 10)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewScannerRaisesHistoryToLookback(t *testing.T) {
	provider := &mockProvider{}
	provider.On("GetDailyPrices", mock.Anything, mock.Anything, 25).Return(bars(10), nil)

	s, err := NewScanner(provider, newGenerator(t, 25), testUniverse[:1], Config{HistoryBars: 5}, quietLogger())
	require.NoError(t, err)

	_, err = s.ScanMarket(context.Background(), strategy.SignalBuy, 0.5, 1)
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestNewScannerRequiresCollaborators(t *testing.T) {
	_, err := NewScanner(nil, newGenerator(t, 1), nil, Config{}, nil)
	assert.Error(t, err)

	_, err = NewScanner(&mockProvider{}, nil, nil, Config{}, nil)
	assert.Error(t, err)
}

func TestSortResultsTieBreak(t *testing.T) {
	results := []ScanResult{
		{StockCode: "B", Confidence: 0.5},
		{StockCode: "C", Confidence: 0.9},
		{StockCode: "A", Confidence: 0.5},
	}
	SortResults(results)
	assert.Equal(t, "C", results[0].StockCode)
	assert.Equal(t, "A", results[1].StockCode)
	assert.Equal(t, "B", results[2].StockCode)
}
