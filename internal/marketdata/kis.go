package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/krx-quant/internal/metrics"
	"github.com/yourusername/krx-quant/internal/models"
)

const (
	kisSource = "kis"

	kisDailyChartPath = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	kisPricePath      = "/uapi/domestic-stock/v1/quotations/inquire-price"
	kisTokenPath      = "/oauth2/tokenP"

	kisDailyChartTrID = "FHKST03010100"
	kisPriceTrID      = "FHKST01010100"

	kisDateLayout = "20060102"

	// kisMaxRowsPerPage is the most rows the daily chart endpoint returns per call
	kisMaxRowsPerPage = 100

	// kisPageSpan is the calendar window requested per page; 100 trading days fit in it
	kisPageSpan = 140 * 24 * time.Hour
)

// KST is the exchange time zone
var KST = time.FixedZone("KST", 9*60*60)

// KISConfig configures the Korea Investment & Securities open API client
type KISConfig struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	MaxPages  int
}

// KISProvider implements Provider against the KIS open API. Numeric fields arrive as
// strings and are parsed with decimal to avoid float formatting surprises.
type KISProvider struct {
	httpClient *RateLimitedHTTPClient
	cfg        KISConfig
	logger     *logrus.Entry
	now        func() time.Time

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

type kisTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type kisEnvelope struct {
	ReturnCode  string `json:"rt_cd"`
	MessageCode string `json:"msg_cd"`
	Message     string `json:"msg1"`
}

type kisDailyRow struct {
	Date   string `json:"stck_bsop_date"`
	Open   string `json:"stck_oprc"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Close  string `json:"stck_clpr"`
	Volume string `json:"acml_vol"`
}

type kisDailyResponse struct {
	kisEnvelope
	Rows []kisDailyRow `json:"output2"`
}

type kisPriceResponse struct {
	kisEnvelope
	Output struct {
		Price      string `json:"stck_prpr"`
		Change     string `json:"prdy_vrss"`
		ChangeRate string `json:"prdy_ctrt"`
		Volume     string `json:"acml_vol"`
	} `json:"output"`
}

// NewKISProvider creates a KIS client
func NewKISProvider(httpClient *RateLimitedHTTPClient, cfg KISConfig, logger *logrus.Logger) *KISProvider {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	return &KISProvider{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.WithField("component", "kis_provider"),
		now:        time.Now,
	}
}

// Name returns the provider name
func (p *KISProvider) Name() string {
	return kisSource
}

// GetDailyPrices pages backwards from today until count bars are collected
func (p *KISProvider) GetDailyPrices(ctx context.Context, stockCode string, count int) ([]models.PriceBar, error) {
	if count <= 0 {
		return nil, NewProviderError(kisSource, ErrCodeInvalidRequest, fmt.Sprintf("count must be positive, got %d", count), nil)
	}

	end := p.now().In(KST)
	var bars []models.PriceBar
	for page := 0; page < p.cfg.MaxPages && len(bars) < count; page++ {
		start := end.Add(-kisPageSpan)
		chunk, err := p.fetchDaily(ctx, stockCode, start, end)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		bars = append(chunk, bars...)
		end = chunk[0].Date.AddDate(0, 0, -1)
	}

	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

// GetPriceHistory pages backwards from end until start is covered
func (p *KISProvider) GetPriceHistory(ctx context.Context, stockCode string, start, end time.Time) ([]models.PriceBar, error) {
	if end.Before(start) {
		return nil, NewProviderError(kisSource, ErrCodeInvalidRequest, "end date before start date", nil)
	}

	var bars []models.PriceBar
	cursor := end.In(KST)
	for page := 0; page < p.cfg.MaxPages && !cursor.Before(start); page++ {
		from := cursor.Add(-kisPageSpan)
		if from.Before(start) {
			from = start
		}
		chunk, err := p.fetchDaily(ctx, stockCode, from, cursor)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			break
		}
		bars = append(chunk, bars...)
		cursor = chunk[0].Date.AddDate(0, 0, -1)
	}

	return trimRange(bars, start, end), nil
}

// GetCurrentPrice fetches the latest quote
func (p *KISProvider) GetCurrentPrice(ctx context.Context, stockCode string) (*models.Quote, error) {
	q := url.Values{}
	q.Set("FID_COND_MRKT_DIV_CODE", "J")
	q.Set("FID_INPUT_ISCD", stockCode)

	var out kisPriceResponse
	if err := p.get(ctx, kisPricePath, kisPriceTrID, q, &out); err != nil {
		return nil, err
	}

	price, err := decimal.NewFromString(out.Output.Price)
	if err != nil || price.IsZero() {
		return nil, NewProviderError(kisSource, ErrCodeNotFound, fmt.Sprintf("no quote for %s", stockCode), err)
	}

	return &models.Quote{
		StockCode:  stockCode,
		Price:      price.InexactFloat64(),
		Change:     parseFloat(out.Output.Change),
		ChangeRate: parseFloat(out.Output.ChangeRate),
		Volume:     parseFloat(out.Output.Volume),
		Time:       p.now().In(KST),
	}, nil
}

func (p *KISProvider) fetchDaily(ctx context.Context, stockCode string, start, end time.Time) ([]models.PriceBar, error) {
	q := url.Values{}
	q.Set("FID_COND_MRKT_DIV_CODE", "J")
	q.Set("FID_INPUT_ISCD", stockCode)
	q.Set("FID_INPUT_DATE_1", start.In(KST).Format(kisDateLayout))
	q.Set("FID_INPUT_DATE_2", end.In(KST).Format(kisDateLayout))
	q.Set("FID_PERIOD_DIV_CODE", "D")
	q.Set("FID_ORG_ADJ_PRC", "0")

	var out kisDailyResponse
	if err := p.get(ctx, kisDailyChartPath, kisDailyChartTrID, q, &out); err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(out.Rows))
	for _, row := range out.Rows {
		if row.Date == "" {
			continue
		}
		bar, err := convertDailyRow(row)
		if err != nil {
			return nil, NewProviderError(kisSource, ErrCodeInvalidData, fmt.Sprintf("bad row for %s", stockCode), err)
		}
		bars = append(bars, bar)
	}
	if len(bars) > kisMaxRowsPerPage {
		p.logger.WithField("rows", len(bars)).Debug("Daily chart page larger than expected")
	}

	// API returns newest-first
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	if err := models.ValidateBars(bars); err != nil {
		return nil, NewProviderError(kisSource, ErrCodeInvalidData, fmt.Sprintf("bars for %s", stockCode), err)
	}
	return bars, nil
}

func (p *KISProvider) get(ctx context.Context, path, trID string, query url.Values, out interface{}) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return NewProviderError(kisSource, ErrCodeNetworkError, "failed to create request", err)
	}
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", p.cfg.AppKey)
	req.Header.Set("appsecret", p.cfg.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := p.httpClient.Do(ctx, req)
	if err != nil {
		metrics.RecordProviderRequest(kisSource, "error", time.Since(started).Seconds())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewProviderError(kisSource, ErrCodeNetworkError, "request failed", err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest(kisSource, fmt.Sprint(resp.StatusCode), time.Since(started).Seconds())

	if err := statusError(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError(kisSource, ErrCodeNetworkError, "failed to read response", err)
	}
	var env kisEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return NewProviderError(kisSource, ErrCodeInvalidData, "failed to parse response", err)
	}
	if env.ReturnCode != "" && env.ReturnCode != "0" {
		return NewProviderError(kisSource, ErrCodeServerError, fmt.Sprintf("%s: %s", env.MessageCode, env.Message), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewProviderError(kisSource, ErrCodeInvalidData, "failed to parse response", err)
	}
	return nil
}

// Check fails while the circuit breaker is open or a token cannot be obtained
func (p *KISProvider) Check(ctx context.Context) error {
	if p.httpClient.IsOpen() {
		return NewProviderError(kisSource, ErrCodeNetworkError, "circuit breaker open", ErrCircuitOpen)
	}
	_, err := p.accessToken(ctx)
	return err
}

// accessToken returns a cached OAuth token, refreshing it a minute before expiry
func (p *KISProvider) accessToken(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	now := p.now()
	if p.token != "" && now.Before(p.tokenExpiry.Add(-time.Minute)) {
		return p.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     p.cfg.AppKey,
		"appsecret":  p.cfg.AppSecret,
	})
	if err != nil {
		return "", err
	}

	resp, err := p.httpClient.Post(ctx, p.cfg.BaseURL+kisTokenPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", NewProviderError(kisSource, ErrCodeNetworkError, "token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", NewProviderError(kisSource, ErrCodeAuthenticationFailed, "invalid app key or secret", nil)
	}
	if err := statusError(resp); err != nil {
		return "", err
	}

	var tok kisTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", NewProviderError(kisSource, ErrCodeInvalidData, "failed to parse token response", err)
	}
	if tok.AccessToken == "" {
		return "", NewProviderError(kisSource, ErrCodeAuthenticationFailed, "empty access token", nil)
	}

	p.token = tok.AccessToken
	p.tokenExpiry = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	p.logger.WithField("expires_at", p.tokenExpiry).Debug("Access token refreshed")
	return p.token, nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return NewProviderError(kisSource, ErrCodeAuthenticationFailed, "unauthorized", nil)
	case resp.StatusCode == http.StatusNotFound:
		return NewProviderError(kisSource, ErrCodeNotFound, "resource not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewProviderError(kisSource, ErrCodeRateLimitExceeded, "rate limit exceeded", nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewProviderError(kisSource, ErrCodeServerError, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}
}

func convertDailyRow(row kisDailyRow) (models.PriceBar, error) {
	date, err := time.ParseInLocation(kisDateLayout, row.Date, KST)
	if err != nil {
		return models.PriceBar{}, fmt.Errorf("invalid date %q: %w", row.Date, err)
	}

	values := make([]float64, 5)
	for i, s := range []string{row.Open, row.High, row.Low, row.Close, row.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.PriceBar{}, fmt.Errorf("invalid number %q on %s: %w", s, row.Date, err)
		}
		values[i] = d.InexactFloat64()
	}

	return models.PriceBar{
		Date:   date,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// parseFloat parses an optional numeric string, returning 0 if invalid
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// trimRange keeps bars with start <= Date <= end, comparing calendar days
func trimRange(bars []models.PriceBar, start, end time.Time) []models.PriceBar {
	from := dayKey(start)
	to := dayKey(end)
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		k := dayKey(b.Date)
		if k >= from && k <= to {
			out = append(out, b)
		}
	}
	return out
}

func dayKey(t time.Time) string {
	return t.In(KST).Format(kisDateLayout)
}
