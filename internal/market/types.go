// Package market defines the read-only data snapshot consumed by the
// ensemble. Concrete data source connectors live outside this service and
// implement DataProvider.
package market

import (
	"context"
	"time"
)

// Candle is a single OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Spread float64   `json:"spread,omitempty"`
}

// NewsItem is a scored news headline.
type NewsItem struct {
	Sentiment float64   `json:"sentiment"` // -1 to 1
	Timestamp time.Time `json:"timestamp"`
	Relevance float64   `json:"relevance"` // 0 to 1
}

// Snapshot is one immutable view of the market handed to every agent for a
// single ensemble pass. Candles and News are ordered oldest first.
type Snapshot struct {
	Symbol  string
	Candles []Candle
	News    []NewsItem
}

// LastClose returns the most recent close price, or 0 with no candles.
func (s *Snapshot) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}

// Closes returns the close series for the last n candles (all if n <= 0 or
// fewer are available).
func (s *Snapshot) Closes(n int) []float64 {
	candles := s.Candles
	if n > 0 && len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// DataProvider supplies market snapshots. Implementations are external to
// this service.
type DataProvider interface {
	Snapshot(ctx context.Context, symbol string) (*Snapshot, error)
}
