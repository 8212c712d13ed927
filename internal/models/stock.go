package models

import "time"

// Market identifies a KRX board
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
)

// Stock is a member of the scan universe
type Stock struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market Market `json:"market"`
}

// Quote is a current-price snapshot for a stock
type Quote struct {
	StockCode  string    `json:"stock_code"`
	Price      float64   `json:"price"`
	Change     float64   `json:"change"`
	ChangeRate float64   `json:"change_rate"`
	Volume     float64   `json:"volume"`
	Time       time.Time `json:"time"`
}
