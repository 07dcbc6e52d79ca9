package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Report is the subset of the RugCheck token report the pipeline consumes.
type Report struct {
	Mint                 string      `json:"mint"`
	Score                float64     `json:"score"`
	ScoreNormalised      float64     `json:"score_normalised"`
	TotalMarketLiquidity float64     `json:"totalMarketLiquidity"`
	TotalHolders         int64       `json:"totalHolders"`
	TotalLPProviders     int64       `json:"totalLPProviders"`
	Price                float64     `json:"price"`
	Rugged               bool        `json:"rugged"`
	TopHolders           []TopHolder `json:"topHolders"`
	Markets              []Market    `json:"markets"`
	Lockers              Lockers     `json:"lockers"`
	Risks                []Risk      `json:"risks"`
	DetectedAt           string      `json:"detectedAt"`
}

// DetectedTime parses DetectedAt. A missing or malformed value yields the zero time.
func (r *Report) DetectedTime() time.Time {
	if r == nil || r.DetectedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, r.DetectedAt)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

type TopHolder struct {
	Address string          `json:"address"`
	Owner   string          `json:"owner"`
	Amount  decimal.Decimal `json:"amount"`
	Pct     float64         `json:"pct"`
	Insider bool            `json:"insider"`
}

type Market struct {
	Pubkey     string    `json:"pubkey"`
	MarketType string    `json:"marketType"`
	LP         *MarketLP `json:"lp"`
}

type MarketLP struct {
	LPLocked    *float64 `json:"lpLocked"`
	LPLockedPct *float64 `json:"lpLockedPct"`
	LPLockedUSD *float64 `json:"lpLockedUSD"`
}

type Risk struct {
	Name        string  `json:"name"`
	Value       string  `json:"value"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Level       string  `json:"level"`
}

// Locker is a liquidity locker entry of the report.
type Locker struct {
	Key        string   `json:"-"`
	Owner      string   `json:"owner"`
	USDCLocked *float64 `json:"usdcLocked"`
	UnlockDate *int64   `json:"unlockDate"`
}

// UnlockTime converts the unix-seconds unlock date, nil when absent.
func (l Locker) UnlockTime() *time.Time {
	if l.UnlockDate == nil || *l.UnlockDate <= 0 {
		return nil
	}
	t := time.Unix(*l.UnlockDate, 0).UTC()
	return &t
}

// Lockers keeps the upstream object's key order so "first locker" is stable.
type Lockers []Locker

func (l *Lockers) UnmarshalJSON(data []byte) error {
	*l = nil
	trimmed := bytes.TrimSpace(data)
	// Anything other than an object (null, [], a stray scalar) means no lockers.
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var locker Locker
		if err := dec.Decode(&locker); err != nil {
			return fmt.Errorf("lockers[%s]: %w", key, err)
		}
		locker.Key = key
		*l = append(*l, locker)
	}
	_, err := dec.Token()
	return err
}

// PriceQuote accepts either a bare number or an object with a price field.
type PriceQuote struct {
	Price float64 `json:"price"`
}

func (p *PriceQuote) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		p.Price = 0
		return nil
	}
	if trimmed[0] != '{' {
		return json.Unmarshal(trimmed, &p.Price)
	}
	var obj struct {
		Price *float64 `json:"price"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	p.Price = 0
	if obj.Price != nil {
		p.Price = *obj.Price
	}
	return nil
}

type Votes struct {
	Up        int64 `json:"up"`
	Down      int64 `json:"down"`
	UserVoted bool  `json:"userVoted"`
}

type InsiderNode struct {
	ID          string  `json:"id"`
	Participant bool    `json:"participant"`
	Holdings    float64 `json:"holdings"`
}

type InsiderNetwork struct {
	ID          string        `json:"net_id"`
	NetworkType string        `json:"network_type"`
	Nodes       []InsiderNode `json:"nodes"`
	RelatedMint *string       `json:"relatedMint"`
}

// InsiderGraph accepts either a bare array of networks or {"networks": [...]}.
type InsiderGraph struct {
	Networks []InsiderNetwork `json:"networks"`
}

func (g *InsiderGraph) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	g.Networks = nil
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &g.Networks)
	}
	var obj struct {
		Networks []InsiderNetwork `json:"networks"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	g.Networks = obj.Networks
	return nil
}

// Nodes flattens every network's nodes in upstream order.
func (g InsiderGraph) Nodes() []InsiderNode {
	var out []InsiderNode
	for _, n := range g.Networks {
		out = append(out, n.Nodes...)
	}
	return out
}

// UpstreamData is the full fetch set for one token.
type UpstreamData struct {
	Report *Report
	Price  PriceQuote
	Votes  Votes
	Graph  InsiderGraph
}
