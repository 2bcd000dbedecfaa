package exchange

import "context"

// OrderGateway 是策略层依赖的最小下单能力集合。策略持有网关引用
// 而不是继承具体客户端，便于替换为纸面撮合或测试替身。
type OrderGateway interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, amount float64) (Order, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side Side, amount, price float64, timeInForce string) (Order, error)
	PlaceStopLimitOrder(ctx context.Context, symbol string, side Side, amount, stopPrice, limitPrice float64) (Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrderStatus(ctx context.Context, symbol, orderID string) (Order, error)
}

var (
	_ OrderGateway = (*Client)(nil)
	_ OrderGateway = (*PaperGateway)(nil)
)
