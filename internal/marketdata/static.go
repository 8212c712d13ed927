package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/krx-quant/internal/models"
)

// StaticProvider serves bars held in memory, e.g. loaded from a CSV export
type StaticProvider struct {
	mu   sync.RWMutex
	bars map[string][]models.PriceBar
}

// NewStaticProvider creates an empty static provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{bars: make(map[string][]models.PriceBar)}
}

// SetBars replaces the bars for a code. Bars are sorted oldest-first and must not
// repeat a date.
func (p *StaticProvider) SetBars(stockCode string, bars []models.PriceBar) error {
	sorted := copyBars(bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	if err := models.ValidateBars(sorted); err != nil {
		return fmt.Errorf("bars for %s: %w", stockCode, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[stockCode] = sorted
	return nil
}

// Codes returns the codes with bars, sorted
func (p *StaticProvider) Codes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	codes := make([]string, 0, len(p.bars))
	for code := range p.bars {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetDailyPrices returns the last count bars
func (p *StaticProvider) GetDailyPrices(ctx context.Context, stockCode string, count int) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, NewProviderError("static", ErrCodeInvalidRequest, fmt.Sprintf("count must be positive, got %d", count), nil)
	}
	bars, err := p.lookup(stockCode)
	if err != nil {
		return nil, err
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return copyBars(bars), nil
}

// GetPriceHistory returns bars within [start, end]
func (p *StaticProvider) GetPriceHistory(ctx context.Context, stockCode string, start, end time.Time) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, NewProviderError("static", ErrCodeInvalidRequest, "end date before start date", nil)
	}
	bars, err := p.lookup(stockCode)
	if err != nil {
		return nil, err
	}
	return trimRange(bars, start, end), nil
}

// GetCurrentPrice builds a quote from the last two bars
func (p *StaticProvider) GetCurrentPrice(ctx context.Context, stockCode string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := p.lookup(stockCode)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, NewProviderError("static", ErrCodeNotFound, fmt.Sprintf("no bars for %s", stockCode), nil)
	}

	last := bars[len(bars)-1]
	quote := &models.Quote{StockCode: stockCode, Price: last.Close, Volume: last.Volume, Time: last.Date}
	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		quote.Change = last.Close - prev
		if prev != 0 {
			quote.ChangeRate = quote.Change / prev * 100
		}
	}
	return quote, nil
}

func (p *StaticProvider) lookup(stockCode string) ([]models.PriceBar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars, ok := p.bars[stockCode]
	if !ok {
		return nil, NewProviderError("static", ErrCodeNotFound, fmt.Sprintf("unknown stock %s", stockCode), nil)
	}
	return bars, nil
}

// LoadCSV reads rows of code,date,open,high,low,close,volume into a new provider.
// A header row is skipped when its first column is "code". Dates use YYYY-MM-DD.
func LoadCSV(r io.Reader) (*StaticProvider, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 7
	reader.TrimLeadingSpace = true

	grouped := make(map[string][]models.PriceBar)
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(record[0], "code") {
			continue
		}

		date, err := time.ParseInLocation("2006-01-02", record[1], KST)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", line, record[1], err)
		}
		nums := make([]float64, 5)
		for i := range nums {
			v, err := strconv.ParseFloat(record[i+2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q: %w", line, record[i+2], err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d: non-finite number %q", line, record[i+2])
			}
			nums[i] = v
		}
		grouped[record[0]] = append(grouped[record[0]], models.PriceBar{
			Date:   date,
			Open:   nums[0],
			High:   nums[1],
			Low:    nums[2],
			Close:  nums[3],
			Volume: nums[4],
		})
	}

	p := NewStaticProvider()
	for code, bars := range grouped {
		if err := p.SetBars(code, bars); err != nil {
			return nil, err
		}
	}
	return p, nil
}
