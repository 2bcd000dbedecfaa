package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

const (
	// ATRPeriod 为波动率计算的默认周期。
	ATRPeriod = 14
	// SMAPeriod 为均价计算的默认周期。
	SMAPeriod = 20
)

// ATR 返回序列最新的绝对 ATR 值。
func ATR(series Series, period int) (float64, error) {
	if period <= 0 {
		period = ATRPeriod
	}
	if series.Len() <= period {
		return 0, fmt.Errorf("indicator: 计算 ATR(%d) 需要至少 %d 根K线，当前 %d", period, period+1, series.Len())
	}

	values := talib.Atr(series.High, series.Low, series.Close, period)
	atr := Last(values)
	if math.IsNaN(atr) || atr <= 0 {
		return 0, fmt.Errorf("indicator: ATR 计算结果无效")
	}
	return atr, nil
}

// RelativeATR 返回 ATR 相对最新收盘价的比例。
func RelativeATR(series Series, period int) (float64, error) {
	atr, err := ATR(series, period)
	if err != nil {
		return 0, err
	}

	last := Last(series.Close)
	if math.IsNaN(last) || last <= 0 {
		return 0, fmt.Errorf("indicator: 收盘价无效")
	}
	return atr / last, nil
}

// SMA 返回序列最新的简单移动平均。
func SMA(series Series, period int) (float64, error) {
	if period <= 0 {
		period = SMAPeriod
	}
	if series.Len() < period {
		return 0, fmt.Errorf("indicator: 计算 SMA(%d) 需要至少 %d 根K线，当前 %d", period, period, series.Len())
	}

	values := talib.Sma(series.Close, period)
	sma := Last(values)
	if math.IsNaN(sma) || sma <= 0 {
		return 0, fmt.Errorf("indicator: SMA 计算结果无效")
	}
	return sma, nil
}
