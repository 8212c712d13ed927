// Package universe holds the static KOSPI and KOSDAQ symbol lists scanned by default.
package universe

import (
	"sort"

	"github.com/yourusername/krx-quant/internal/models"
)

var kospi = []models.Stock{
	{Code: "000270", Name: "기아", Market: models.MarketKOSPI},
	{Code: "000660", Name: "SK하이닉스", Market: models.MarketKOSPI},
	{Code: "003550", Name: "LG", Market: models.MarketKOSPI},
	{Code: "005380", Name: "현대차", Market: models.MarketKOSPI},
	{Code: "005490", Name: "POSCO홀딩스", Market: models.MarketKOSPI},
	{Code: "005930", Name: "삼성전자", Market: models.MarketKOSPI},
	{Code: "006400", Name: "삼성SDI", Market: models.MarketKOSPI},
	{Code: "012330", Name: "현대모비스", Market: models.MarketKOSPI},
	{Code: "015760", Name: "한국전력", Market: models.MarketKOSPI},
	{Code: "017670", Name: "SK텔레콤", Market: models.MarketKOSPI},
	{Code: "028260", Name: "삼성물산", Market: models.MarketKOSPI},
	{Code: "032830", Name: "삼성생명", Market: models.MarketKOSPI},
	{Code: "034730", Name: "SK", Market: models.MarketKOSPI},
	{Code: "035420", Name: "NAVER", Market: models.MarketKOSPI},
	{Code: "035720", Name: "카카오", Market: models.MarketKOSPI},
	{Code: "051910", Name: "LG화학", Market: models.MarketKOSPI},
	{Code: "055550", Name: "신한지주", Market: models.MarketKOSPI},
	{Code: "066570", Name: "LG전자", Market: models.MarketKOSPI},
	{Code: "068270", Name: "셀트리온", Market: models.MarketKOSPI},
	{Code: "086790", Name: "하나금융지주", Market: models.MarketKOSPI},
	{Code: "096770", Name: "SK이노베이션", Market: models.MarketKOSPI},
	{Code: "105560", Name: "KB금융", Market: models.MarketKOSPI},
	{Code: "207940", Name: "삼성바이오로직스", Market: models.MarketKOSPI},
	{Code: "373220", Name: "LG에너지솔루션", Market: models.MarketKOSPI},
}

var kosdaq = []models.Stock{
	{Code: "028300", Name: "HLB", Market: models.MarketKOSDAQ},
	{Code: "035900", Name: "JYP Ent.", Market: models.MarketKOSDAQ},
	{Code: "039030", Name: "이오테크닉스", Market: models.MarketKOSDAQ},
	{Code: "041510", Name: "에스엠", Market: models.MarketKOSDAQ},
	{Code: "058470", Name: "리노공업", Market: models.MarketKOSDAQ},
	{Code: "068760", Name: "셀트리온제약", Market: models.MarketKOSDAQ},
	{Code: "086520", Name: "에코프로", Market: models.MarketKOSDAQ},
	{Code: "091990", Name: "셀트리온헬스케어", Market: models.MarketKOSDAQ},
	{Code: "112040", Name: "위메이드", Market: models.MarketKOSDAQ},
	{Code: "145020", Name: "휴젤", Market: models.MarketKOSDAQ},
	{Code: "196170", Name: "알테오젠", Market: models.MarketKOSDAQ},
	{Code: "214150", Name: "클래시스", Market: models.MarketKOSDAQ},
	{Code: "240810", Name: "원익IPS", Market: models.MarketKOSDAQ},
	{Code: "247540", Name: "에코프로비엠", Market: models.MarketKOSDAQ},
	{Code: "263750", Name: "펄어비스", Market: models.MarketKOSDAQ},
	{Code: "277810", Name: "레인보우로보틱스", Market: models.MarketKOSDAQ},
	{Code: "293490", Name: "카카오게임즈", Market: models.MarketKOSDAQ},
	{Code: "357780", Name: "솔브레인", Market: models.MarketKOSDAQ},
}

func init() {
	byCode := func(list []models.Stock) {
		sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	}
	byCode(kospi)
	byCode(kosdaq)
}

// KOSPI returns the KOSPI members in code order
func KOSPI() []models.Stock {
	return clone(kospi)
}

// KOSDAQ returns the KOSDAQ members in code order
func KOSDAQ() []models.Stock {
	return clone(kosdaq)
}

// All returns KOSPI members followed by KOSDAQ members
func All() []models.Stock {
	out := make([]models.Stock, 0, len(kospi)+len(kosdaq))
	out = append(out, kospi...)
	return append(out, kosdaq...)
}

// ByMarket returns the members of one market, or nil for an unknown market
func ByMarket(market models.Market) []models.Stock {
	switch market {
	case models.MarketKOSPI:
		return KOSPI()
	case models.MarketKOSDAQ:
		return KOSDAQ()
	}
	return nil
}

// Lookup finds a stock by code
func Lookup(code string) (models.Stock, bool) {
	for _, list := range [][]models.Stock{kospi, kosdaq} {
		for _, s := range list {
			if s.Code == code {
				return s, true
			}
		}
	}
	return models.Stock{}, false
}

// Select resolves codes against the universe, keeping their order. Unknown codes are
// returned with an empty name and market so callers can still scan them.
func Select(codes []string) []models.Stock {
	out := make([]models.Stock, 0, len(codes))
	for _, code := range codes {
		if s, ok := Lookup(code); ok {
			out = append(out, s)
			continue
		}
		out = append(out, models.Stock{Code: code})
	}
	return out
}

func clone(list []models.Stock) []models.Stock {
	out := make([]models.Stock, len(list))
	copy(out, list)
	return out
}
