package exchange

import "time"

// Side 表示订单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType 表示订单类型。
type OrderType string

const (
	TypeMarket    OrderType = "market"
	TypeLimit     OrderType = "limit"
	TypeStopLimit OrderType = "stop_limit"
)

// Status 表示订单状态。
type Status string

const (
	StatusNew             Status = "new"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCanceled        Status = "canceled"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

// Terminal 判断状态是否为终态。
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Order 为交易所订单的统一快照。快照不可变，返回后交易所侧状态
// 可能继续变化，只能通过再次查询观察到。
type Order struct {
	ID           string
	Symbol       string
	Side         Side
	Type         OrderType
	Amount       float64
	Price        float64 // 市价单为 0
	StopPrice    float64
	TimeInForce  string
	Filled       float64
	AveragePrice float64
	Status       Status
	Timestamp    time.Time
}

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
