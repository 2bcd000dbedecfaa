package journal

import (
	"encoding/json"
	"time"

	"futures-bot/internal/exchange"
	"futures-bot/internal/strategy/grid"
	"futures-bot/internal/strategy/twap"
)

// EventType 表示事件日志类型。
type EventType string

const (
	EventOrderPlaced   EventType = "order_placed"
	EventOrderFailed   EventType = "order_failed"
	EventOrderCanceled EventType = "order_canceled"
	EventTWAPRun       EventType = "twap_run"
	EventGridSetup     EventType = "grid_setup"
	EventGridCycle     EventType = "grid_cycle"
	EventError         EventType = "error"
)

// Event 封装待写入的事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StoredEvent 为已落库事件的回读形式。
type StoredEvent struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// OrderPayload 记录一次成功提交或撤销的订单。
type OrderPayload struct {
	Order exchange.Order `json:"order"`
	Note  string         `json:"note,omitempty"`
}

// OrderFailedPayload 记录一次失败的网关调用。
type OrderFailedPayload struct {
	Op     string  `json:"op"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Price  float64 `json:"price,omitempty"`
	Error  string  `json:"error"`
}

// TWAPRunPayload 记录一次完整的 TWAP 执行。
type TWAPRunPayload struct {
	Plan     twap.Plan    `json:"plan"`
	Summary  twap.Summary `json:"summary"`
	OrderIDs []string     `json:"order_ids"`
}

// GridSetupPayload 记录一次网格铺设。
type GridSetupPayload struct {
	Params    grid.Params `json:"params"`
	Attempted int         `json:"attempted"`
	Succeeded int         `json:"succeeded"`
	OrderIDs  []string    `json:"order_ids"`
}

// GridCyclePayload 记录一轮网格巡检。
type GridCyclePayload struct {
	Params      grid.Params `json:"params"`
	Checked     int         `json:"checked"`
	FilledIDs   []string    `json:"filled_ids"`
	ReplacedIDs []string    `json:"replaced_ids"`
	Skipped     int         `json:"skipped"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
