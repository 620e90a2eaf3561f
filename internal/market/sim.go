package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimProvider generates simulated market snapshots for development and for
// running the engine without a live feed.
type SimProvider struct {
	mu         sync.RWMutex
	prices     map[string]float64
	lastUpdate time.Time
	rng        *rand.Rand
}

// NewSimProvider creates a simulated data provider
func NewSimProvider() *SimProvider {
	return &SimProvider{
		prices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"BNBUSDT": 710.00,
			"SOLUSDT": 220.00,
			"XRPUSDT": 2.35,
			"EURUSD":  1.0850,
			"GBPUSD":  1.2700,
			"USDJPY":  148.50,
			"XAUUSD":  2650.00,
		},
		lastUpdate: time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Snapshot builds a random-walk snapshot with enough history for every
// feature builder: 120 candles and a handful of news items.
func (p *SimProvider) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	base, ok := p.prices[symbol]
	if !ok {
		base = 100.0
		p.prices[symbol] = base
	}
	// Drift the base price so successive snapshots differ
	base *= 1 + (p.rng.Float64()-0.5)*0.002
	p.prices[symbol] = base

	const bars = 120
	volatility := 0.005
	now := time.Now()
	candles := make([]Candle, bars)
	price := base * (1 - volatility*float64(bars)/20)
	for i := 0; i < bars; i++ {
		open := price
		change := (p.rng.Float64() - 0.5) * volatility * 2
		close := open * (1 + change)
		high := math.Max(open, close) * (1 + p.rng.Float64()*volatility*0.5)
		low := math.Min(open, close) * (1 - p.rng.Float64()*volatility*0.5)
		candles[i] = Candle{
			Time:   now.Add(-time.Duration(bars-i) * time.Minute),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: 1000 + p.rng.Float64()*5000,
			Spread: 1.0 + p.rng.Float64()*2.0,
		}
		price = close
	}

	news := make([]NewsItem, 0, 5)
	for i := 0; i < 5; i++ {
		news = append(news, NewsItem{
			Sentiment: (p.rng.Float64() - 0.5) * 2,
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Relevance: 0.5 + p.rng.Float64()*0.5,
		})
	}
	p.mu.Unlock()

	return &Snapshot{
		Symbol:  symbol,
		Candles: candles,
		News:    news,
	}, nil
}
