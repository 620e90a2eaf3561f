// Package model loads predictive model files and exposes them behind a
// uniform predict contract. The formats here are deliberately simple; the
// loader registry is the extension point for anything heavier.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Handle is a loaded model ready for inference. Output convention: the first
// element is a score in [0,1], the optional second element is a confidence
// in [0,1].
type Handle interface {
	Predict(features []float64) ([]float64, error)
}

// linearModel scores a feature vector with a logistic linear combination.
type linearModel struct {
	Weights     []float64 `json:"weights"`
	Bias        float64   `json:"bias"`
	ConfWeights []float64 `json:"confidence_weights,omitempty"`
	ConfBias    float64   `json:"confidence_bias,omitempty"`
}

func (m *linearModel) Predict(features []float64) ([]float64, error) {
	if len(features) != len(m.Weights) {
		return nil, fmt.Errorf("feature vector length %d does not match model input %d",
			len(features), len(m.Weights))
	}

	score := sigmoid(dot(m.Weights, features) + m.Bias)

	confidence := 0.5
	if len(m.ConfWeights) == len(features) && len(m.ConfWeights) > 0 {
		confidence = sigmoid(dot(m.ConfWeights, features) + m.ConfBias)
	}

	return []float64{score, confidence}, nil
}

// rulesModel maps one feature through fixed buy/sell thresholds.
type rulesModel struct {
	Index      int     `json:"index"`
	BuyAbove   float64 `json:"buy_above"`
	SellBelow  float64 `json:"sell_below"`
	Confidence float64 `json:"confidence"`
}

func (m *rulesModel) Predict(features []float64) ([]float64, error) {
	if m.Index < 0 || m.Index >= len(features) {
		return nil, fmt.Errorf("rule index %d out of range for %d features", m.Index, len(features))
	}

	v := features[m.Index]
	score := 0.5
	switch {
	case v > m.BuyAbove:
		score = 0.8
	case v < m.SellBelow:
		score = 0.2
	}

	return []float64{score, m.Confidence}, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func readJSONModel(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse model file %s: %w", path, err)
	}
	return nil
}
