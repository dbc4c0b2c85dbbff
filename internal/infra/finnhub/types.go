package finnhub

// QuoteResponse is the /quote payload.
// c/o/h/l/pc are current/open/high/low/previous-close, d/dp the day change.
type QuoteResponse struct {
	Current       float64 `json:"c"`
	Open          float64 `json:"o"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	PreviousClose float64 `json:"pc"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	Timestamp     int64   `json:"t"`
}

// ProfileResponse is the /stock/profile2 payload.
// MarketCapitalization is reported in millions of the listed currency.
type ProfileResponse struct {
	Name                 string  `json:"name"`
	Exchange             string  `json:"exchange"`
	Currency             string  `json:"currency"`
	MarketCapitalization float64 `json:"marketCapitalization"`
	Industry             string  `json:"finnhubIndustry"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
}

// MarketStatusResponse is the /stock/market-status payload.
type MarketStatusResponse struct {
	Exchange string `json:"exchange"`
	IsOpen   bool   `json:"isOpen"`
	Session  string `json:"session"` // "pre-market", "regular", "post-market" or empty
	Holiday  string `json:"holiday"`
	Timezone string `json:"timezone"`
}

// SearchResponse is the /search payload.
type SearchResponse struct {
	Count  int            `json:"count"`
	Result []SearchResult `json:"result"`
}

// SearchResult is one symbol lookup match.
type SearchResult struct {
	Symbol        string `json:"symbol"`
	DisplaySymbol string `json:"displaySymbol"`
	Description   string `json:"description"`
	Type          string `json:"type"`
}
