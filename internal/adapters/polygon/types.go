package polygon

// Response envelopes and result shapes for the Polygon REST API.
// Field sets mirror the v2/v3 JSON payloads; only the fields the
// scan pipeline consumes are declared.

// TradeTick is one raw trade print from GET /v3/trades/{contract}
type TradeTick struct {
	Conditions           []int   `json:"conditions"`
	Exchange             int     `json:"exchange"`
	Price                float64 `json:"price"`
	Size                 int64   `json:"size"`
	SipTimestamp         int64   `json:"sip_timestamp"` // nanoseconds
	ParticipantTimestamp int64   `json:"participant_timestamp"`
}

type tradesResponse struct {
	Results []TradeTick `json:"results"`
	Status  string      `json:"status"`
	NextURL string      `json:"next_url"`
}

// ContractDetails describes one listed contract from the reference endpoint
type ContractDetails struct {
	Ticker            string  `json:"ticker"`
	UnderlyingTicker  string  `json:"underlying_ticker"`
	ContractType      string  `json:"contract_type"` // call, put
	ExpirationDate    string  `json:"expiration_date"`
	StrikePrice       float64 `json:"strike_price"`
	SharesPerContract int     `json:"shares_per_contract"`
}

type contractsResponse struct {
	Results []ContractDetails `json:"results"`
	Status  string            `json:"status"`
	NextURL string            `json:"next_url"`
}

// SnapshotContract is one contract entry from GET /v3/snapshot/options/{ticker}
type SnapshotContract struct {
	Details struct {
		Ticker         string  `json:"ticker"`
		ContractType   string  `json:"contract_type"`
		ExpirationDate string  `json:"expiration_date"`
		StrikePrice    float64 `json:"strike_price"`
	} `json:"details"`
	Day struct {
		Volume int64   `json:"volume"`
		Close  float64 `json:"close"`
	} `json:"day"`
	LastTrade struct {
		Price        float64 `json:"price"`
		Size         int64   `json:"size"`
		Exchange     int     `json:"exchange"`
		SipTimestamp int64   `json:"sip_timestamp"`
	} `json:"last_trade"`
	UnderlyingAsset struct {
		Ticker string  `json:"ticker"`
		Price  float64 `json:"price"`
	} `json:"underlying_asset"`
}

type snapshotResponse struct {
	Results []SnapshotContract `json:"results"`
	Status  string             `json:"status"`
}

// Bar is one OHLCV aggregate from the /v2/aggs endpoints
type Bar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"` // bar open, milliseconds
}

type aggsResponse struct {
	Ticker       string `json:"ticker"`
	ResultsCount int    `json:"resultsCount"`
	Results      []Bar  `json:"results"`
	Status       string `json:"status"`
}
