package models

// GoldPriceQuote is the price proxy response. Field names mirror the
// upstream goldprice.org schema the web client already understands.
type GoldPriceQuote struct {
	Timestamp int64   `json:"timestamp"`
	Metal     string  `json:"metal"`
	Currency  string  `json:"currency"`
	XauPrice  float64 `json:"xauPrice"`
	XagPrice  float64 `json:"xagPrice"`
	ChgXau    float64 `json:"chgXau"`
	ChgXag    float64 `json:"chgXag"`
	PcXau     float64 `json:"pcXau"`
	PcXag     float64 `json:"pcXag"`
	XauClose  float64 `json:"xauClose"`
	XagClose  float64 `json:"xagClose"`
}
