package ensemble

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ensemble-signal-engine/internal/logging"
	"ensemble-signal-engine/internal/market"
	"ensemble-signal-engine/internal/model"

	"github.com/rs/zerolog"
)

// Category selects an agent's preprocessing pipeline. Fixed at construction;
// never re-resolved per call.
type Category string

const (
	CategoryTechnical Category = "technical"
	CategorySentiment Category = "sentiment"
	CategoryPrice     Category = "price"
	CategoryRisk      Category = "risk"
)

// Decision is one agent's answer for a single ensemble pass.
type Decision struct {
	AgentName  string                 `json:"agent"`
	Action     Action                 `json:"action"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// featureBuilder turns a market snapshot into a fixed-shape feature vector.
type featureBuilder interface {
	Build(snap *market.Snapshot, now time.Time) []float64
}

// Agent wraps one predictive model. Agents are immutable after construction:
// the performance tracker and hot-swap controller replace pool entries, they
// never mutate a live agent.
type Agent struct {
	Name      string
	Category  Category
	Version   string
	Weight    float64 // performance weight in [0,1]
	UpdatedAt time.Time

	handle  model.Handle
	builder featureBuilder
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewAgent constructs an agent over a loaded model handle.
func NewAgent(name string, category Category, version string, weight float64, handle model.Handle, predictTimeout time.Duration) *Agent {
	if predictTimeout <= 0 {
		predictTimeout = 2 * time.Second
	}
	return &Agent{
		Name:      name,
		Category:  category,
		Version:   version,
		Weight:    clamp(weight, 0, 1),
		UpdatedAt: time.Now(),
		handle:    handle,
		builder:   builderFor(category),
		timeout:   predictTimeout,
		now:       time.Now,
		log:       logging.Component("agent").With().Str("agent", name).Logger(),
	}
}

// WithWeight returns a copy of the agent carrying a new weight. The model
// handle is shared; everything observable is fresh.
func (a *Agent) WithWeight(weight float64) *Agent {
	clone := *a
	clone.Weight = clamp(weight, 0, 1)
	clone.UpdatedAt = time.Now()
	return &clone
}

// Predict generates a decision for the snapshot. It never returns an error:
// any internal failure degrades to a zero-confidence HOLD so one broken agent
// cannot abort the ensemble pass.
func (a *Agent) Predict(ctx context.Context, snap *market.Snapshot) Decision {
	features := a.builder.Build(snap, a.now())

	output, err := a.predictWithTimeout(ctx, features)
	if err != nil {
		a.log.Error().Err(err).Msg("Prediction failed")
		return Decision{
			AgentName:  a.Name,
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     fmt.Sprintf("Error: %v", err),
			Metadata:   map[string]interface{}{},
		}
	}

	return a.postprocess(output)
}

// predictWithTimeout runs the handle under the agent's deadline. Model
// handles are not context-aware, so a stuck inference is abandoned rather
// than interrupted.
func (a *Agent) predictWithTimeout(ctx context.Context, features []float64) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		output []float64
		err    error
	}
	done := make(chan result, 1)

	go func() {
		out, err := a.handle.Predict(features)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.output, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("prediction timed out after %s: %w", a.timeout, ctx.Err())
	}
}

// postprocess maps raw model output to a decision. Fixed thresholds:
// score > 0.6 buys, score < 0.4 sells, anything between holds.
func (a *Agent) postprocess(output []float64) Decision {
	if len(output) == 0 {
		return Decision{
			AgentName:  a.Name,
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     "Error: empty model output",
			Metadata:   map[string]interface{}{},
		}
	}

	score := output[0]
	confidence := 0.5
	if len(output) >= 2 {
		confidence = clamp(output[1], 0, 1)
	}

	action := ActionHold
	switch {
	case score > 0.6:
		action = ActionBuy
	case score < 0.4:
		action = ActionSell
	}

	return Decision{
		AgentName:  a.Name,
		Action:     action,
		Confidence: confidence,
		Reason:     fmt.Sprintf("Model prediction: %s with %.0f%% confidence", action, confidence*100),
		Metadata:   map[string]interface{}{"score": score},
	}
}

func builderFor(category Category) featureBuilder {
	switch category {
	case CategorySentiment:
		return sentimentFeatures{}
	case CategoryPrice:
		return priceFeatures{}
	case CategoryRisk:
		return riskFeatures{}
	default:
		return technicalFeatures{}
	}
}

// CategoryFromName maps agent naming conventions onto categories; unknown
// names get the technical pipeline.
func CategoryFromName(name string) Category {
	switch {
	case strings.HasPrefix(name, "sentiment"):
		return CategorySentiment
	case strings.HasPrefix(name, "price_prediction"):
		return CategoryPrice
	case strings.HasPrefix(name, "risk_assessment"):
		return CategoryRisk
	default:
		return CategoryTechnical
	}
}

// technicalFeatures needs 60 candles of history: OHLCV series plus RSI, MACD
// and Bollinger bands. Short history yields the zero vector of the same shape.
type technicalFeatures struct{}

// TechnicalFeatureSize is the fixed shape of the technical vector:
// 60 closes + 60 highs + 60 lows + 60 volumes + RSI + MACD(3) + Bollinger(3).
const TechnicalFeatureSize = 60*4 + 1 + 3 + 3

func (technicalFeatures) Build(snap *market.Snapshot, _ time.Time) []float64 {
	features := make([]float64, 0, TechnicalFeatureSize)
	if len(snap.Candles) < 60 {
		return make([]float64, TechnicalFeatureSize)
	}

	recent := snap.Candles[len(snap.Candles)-60:]
	closes := make([]float64, 60)
	for i, c := range recent {
		closes[i] = c.Close
	}

	for _, c := range recent {
		features = append(features, c.Close)
	}
	for _, c := range recent {
		features = append(features, c.High)
	}
	for _, c := range recent {
		features = append(features, c.Low)
	}
	for _, c := range recent {
		features = append(features, c.Volume)
	}

	features = append(features, calculateRSI(closes, 14))
	features = append(features, calculateMACD(closes)...)
	features = append(features, calculateBollinger(closes)...)

	return features
}

// sentimentFeatures aggregates the last 10 news items into
// [avg sentiment, item count, sentiment stddev].
type sentimentFeatures struct{}

func (sentimentFeatures) Build(snap *market.Snapshot, _ time.Time) []float64 {
	news := snap.News
	if len(news) == 0 {
		return []float64{0.0, 0.0, 0.0}
	}
	if len(news) > 10 {
		news = news[len(news)-10:]
	}

	sentiments := make([]float64, len(news))
	for i, item := range news {
		sentiments[i] = item.Sentiment
	}

	return []float64{mean(sentiments), float64(len(sentiments)), stddev(sentiments)}
}

// priceFeatures is the last 20 closes, zero vector when short.
type priceFeatures struct{}

func (priceFeatures) Build(snap *market.Snapshot, _ time.Time) []float64 {
	if len(snap.Candles) < 20 {
		return make([]float64, 20)
	}
	return snap.Closes(20)
}

// riskFeatures is [last close, last volume, spread, ATR(14), trading-hours
// factor]; the factor is 1.0 inside 08:00-16:00 UTC and 0.5 outside.
type riskFeatures struct{}

func (riskFeatures) Build(snap *market.Snapshot, now time.Time) []float64 {
	timeFactor := 0.5
	if hour := now.UTC().Hour(); hour >= 8 && hour <= 16 {
		timeFactor = 1.0
	}

	if len(snap.Candles) == 0 {
		return []float64{0.0, 0.0, 2.0, 0.0, timeFactor}
	}

	latest := snap.Candles[len(snap.Candles)-1]
	spread := latest.Spread
	if spread == 0 {
		spread = 2.0
	}

	return []float64{latest.Close, latest.Volume, spread, calculateATR(snap.Candles, 14), timeFactor}
}
