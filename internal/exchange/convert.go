package exchange

import (
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// convertOrder 将 ccxt 订单转换为统一快照。
func convertOrder(raw ccxt.Order) Order {
	order := Order{}

	if raw.Id != nil {
		order.ID = *raw.Id
	}
	if raw.Symbol != nil {
		order.Symbol = *raw.Symbol
	}
	if raw.Side != nil {
		order.Side = Side(strings.ToLower(*raw.Side))
	}
	if raw.Type != nil {
		order.Type = convertOrderType(*raw.Type)
	}
	if raw.Amount != nil {
		order.Amount = *raw.Amount
	}
	if raw.Price != nil {
		order.Price = *raw.Price
	}
	if raw.StopPrice != nil {
		order.StopPrice = *raw.StopPrice
	}
	if raw.TimeInForce != nil {
		order.TimeInForce = *raw.TimeInForce
	}
	if raw.Filled != nil {
		order.Filled = *raw.Filled
	}
	if raw.Average != nil {
		order.AveragePrice = *raw.Average
	}
	if raw.Timestamp != nil {
		order.Timestamp = time.UnixMilli(*raw.Timestamp).UTC()
	} else {
		order.Timestamp = time.Now().UTC()
	}

	venueStatus := ""
	if raw.Info != nil {
		if s, ok := raw.Info["status"].(string); ok {
			venueStatus = s
		}
	}
	unified := ""
	if raw.Status != nil {
		unified = *raw.Status
	}
	order.Status = convertStatus(venueStatus, unified, order.Filled)

	return order
}

func convertOrderType(raw string) OrderType {
	switch strings.ToLower(raw) {
	case "market":
		return TypeMarket
	case "limit":
		return TypeLimit
	case "stop", "stop_limit", "stop-limit":
		return TypeStopLimit
	}
	return OrderType(strings.ToLower(raw))
}

// convertStatus 优先使用交易所原生状态，缺失时回退到 ccxt 统一状态。
// ccxt 的 open 状态无法区分未成交与部分成交，按已成交数量补判。
func convertStatus(venue, unified string, filled float64) Status {
	switch strings.ToUpper(venue) {
	case "NEW":
		return StatusNew
	case "PARTIALLY_FILLED":
		return StatusPartiallyFilled
	case "FILLED":
		return StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return StatusCanceled
	case "REJECTED":
		return StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return StatusExpired
	}

	switch strings.ToLower(unified) {
	case "open":
		if filled > 0 {
			return StatusPartiallyFilled
		}
		return StatusNew
	case "closed":
		return StatusFilled
	case "canceled":
		return StatusCanceled
	case "rejected":
		return StatusRejected
	case "expired":
		return StatusExpired
	}

	return StatusNew
}
