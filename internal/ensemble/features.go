package ensemble

import (
	"math"

	"ensemble-signal-engine/internal/market"
)

// Indicator math used by the feature builders. Periods match the models these
// agents were trained against: RSI(14), MACD(12,26), Bollinger(20, 2σ),
// ATR(14).

// calculateRSI returns the relative strength index over the given period,
// or 50 (neutral) with insufficient history.
func calculateRSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := mean(gains[len(gains)-period:])
	avgLoss := mean(losses[len(losses)-period:])
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// calculateMACD returns [macd, signal, histogram] from the difference of the
// 12- and 26-bar averages, or zeros with insufficient history.
func calculateMACD(prices []float64) []float64 {
	if len(prices) < 26 {
		return []float64{0, 0, 0}
	}

	ema12 := mean(prices[len(prices)-12:])
	ema26 := mean(prices[len(prices)-26:])
	macd := ema12 - ema26

	// Single-sample signal line collapses to the MACD itself.
	signal := macd
	histogram := macd - signal

	return []float64{macd, signal, histogram}
}

// calculateBollinger returns [middle, upper, lower] of the 20-bar 2σ bands,
// or zeros with insufficient history.
func calculateBollinger(prices []float64) []float64 {
	if len(prices) < 20 {
		return []float64{0, 0, 0}
	}

	window := prices[len(prices)-20:]
	sma := mean(window)
	sd := stddev(window)

	return []float64{sma, sma + 2*sd, sma - 2*sd}
}

// calculateATR returns the mean true range over up to period bars, or 0 with
// fewer than period candles.
func calculateATR(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		return 0.0
	}

	n := len(candles)
	if n > period+1 {
		candles = candles[n-period-1:]
	}

	var trs []float64
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}

	if len(trs) == 0 {
		return 0.0
	}
	return mean(trs)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
