package indicator

import (
	"math"
	"testing"
	"time"

	"futures-bot/internal/exchange"
)

func constantCandles(n int, high, low, close float64) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      close,
			High:      high,
			Low:       low,
			Close:     close,
		}
	}
	return candles
}

func TestATR_ConstantRange(t *testing.T) {
	// 恒定真实波幅下，Wilder 平滑后的 ATR 收敛于该波幅。
	series := NewSeries(constantCandles(50, 101, 99, 100))

	atr, err := ATR(series, 14)
	if err != nil {
		t.Fatalf("ATR returned error: %v", err)
	}
	if math.Abs(atr-2) > 1e-6 {
		t.Errorf("ATR = %f, want 2", atr)
	}
}

func TestATR_InsufficientData(t *testing.T) {
	series := NewSeries(constantCandles(10, 101, 99, 100))
	if _, err := ATR(series, 14); err == nil {
		t.Fatalf("expected error for insufficient candles")
	}
}

func TestRelativeATR(t *testing.T) {
	series := NewSeries(constantCandles(50, 101, 99, 100))

	rel, err := RelativeATR(series, 14)
	if err != nil {
		t.Fatalf("RelativeATR returned error: %v", err)
	}
	if math.Abs(rel-0.02) > 1e-6 {
		t.Errorf("RelativeATR = %f, want 0.02", rel)
	}
}

func TestSMA_ConstantClose(t *testing.T) {
	series := NewSeries(constantCandles(30, 101, 99, 100))

	sma, err := SMA(series, 20)
	if err != nil {
		t.Fatalf("SMA returned error: %v", err)
	}
	if math.Abs(sma-100) > 1e-9 {
		t.Errorf("SMA = %f, want 100", sma)
	}
}
