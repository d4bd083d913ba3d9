package game

import "time"

type PlayerProfile struct {
	ID              string        `json:"id"`
	DisplayName     string        `json:"display_name"`
	RiskTolerance   RiskTolerance `json:"risk_tolerance"`
	PreferredSector string        `json:"preferred_sector"`
	ReturnGoal      ReturnGoal    `json:"return_goal"`
}

type Holding struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Shares        int64   `json:"shares"`
	PurchasePrice float64 `json:"purchase_price"`
	CurrentPrice  float64 `json:"current_price"`
}

func (h Holding) Value() float64 {
	return float64(h.Shares) * h.CurrentPrice
}

func (h Holding) ChangePercent() float64 {
	if h.PurchasePrice == 0 {
		return 0
	}
	return (h.CurrentPrice - h.PurchasePrice) / h.PurchasePrice * 100
}

type Portfolio struct {
	Cash        float64   `json:"cash"`
	Holdings    []Holding `json:"holdings"`
	TotalValue  float64   `json:"total_value"`
	StartValue  float64   `json:"start_value"`
	GameStarted bool      `json:"game_started"`
	State       GameState `json:"state"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Quote is one row of the quote gateway response. Price is nil when the
// gateway could not resolve the symbol.
type Quote struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Price         *float64 `json:"price"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"changePercent"`
}

type RankingEntry struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Sector        string  `json:"sector"`
	Score         float64 `json:"score"`
	Sentiment     float64 `json:"sentiment"`
	Technical     float64 `json:"technical"`
	Leadership    float64 `json:"leadership"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Buyable       bool    `json:"buyable"`
}

type LeaderboardEntry struct {
	Rank          int64   `json:"rank"`
	DisplayName   string  `json:"display_name"`
	PlayerID      string  `json:"player_id"`
	ReturnPercent float64 `json:"return_percent"`
	TotalValue    float64 `json:"total_value"`
}

type HoldingView struct {
	Holding
	Value         float64 `json:"value"`
	ChangePercent float64 `json:"change_percent"`
}

type Snapshot struct {
	Profile         PlayerProfile `json:"profile"`
	Cash            float64       `json:"cash"`
	Holdings        []HoldingView `json:"holdings"`
	HoldingsValue   float64       `json:"holdings_value"`
	TotalValue      float64       `json:"total_value"`
	StartValue      float64       `json:"start_value"`
	ReturnPercent   float64       `json:"return_percent"`
	InvestedPercent float64       `json:"invested_percent"`
	State           GameState     `json:"state"`
	Advisories      []string      `json:"advisories,omitempty"`
	LastAdvisory    string        `json:"last_advisory,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type OrderResult struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Shares     int64     `json:"shares"`
	Price      float64   `json:"price"`
	Notional   float64   `json:"notional"`
	Cash       float64   `json:"cash"`
	TotalValue float64   `json:"total_value"`
	State      GameState `json:"state"`
}
