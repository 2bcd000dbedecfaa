package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// PaperGateway 是内存撮合的网关实现，用于 dry-run 模式：
// 市价单按标记价立即全部成交，限价/止损单保持挂单直到被撤销。
type PaperGateway struct {
	mu     sync.Mutex
	seq    int64
	mark   float64
	orders map[string]Order
}

// NewPaperGateway 创建纸面网关，markPrice 为市价单的成交参考价。
func NewPaperGateway(markPrice float64) *PaperGateway {
	return &PaperGateway{
		mark:   markPrice,
		orders: make(map[string]Order),
	}
}

// SetMarkPrice 更新标记价。
func (g *PaperGateway) SetMarkPrice(price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mark = price
}

// PlaceMarketOrder 立即按标记价全部成交。
func (g *PaperGateway) PlaceMarketOrder(_ context.Context, symbol string, side Side, amount float64) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.mark <= 0 {
		return Order{}, &GatewayError{Op: "place_market_order", Code: "paper", Message: "标记价未设置"}
	}

	order := Order{
		ID:           g.nextID(),
		Symbol:       symbol,
		Side:         side,
		Type:         TypeMarket,
		Amount:       amount,
		Filled:       amount,
		AveragePrice: g.mark,
		Status:       StatusFilled,
		Timestamp:    time.Now().UTC(),
	}
	g.orders[order.ID] = order
	return order, nil
}

// PlaceLimitOrder 登记一张保持挂单状态的限价单。
func (g *PaperGateway) PlaceLimitOrder(_ context.Context, symbol string, side Side, amount, price float64, timeInForce string) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order := Order{
		ID:          g.nextID(),
		Symbol:      symbol,
		Side:        side,
		Type:        TypeLimit,
		Amount:      amount,
		Price:       price,
		TimeInForce: timeInForce,
		Status:      StatusNew,
		Timestamp:   time.Now().UTC(),
	}
	g.orders[order.ID] = order
	return order, nil
}

// PlaceStopLimitOrder 登记一张止损限价单。
func (g *PaperGateway) PlaceStopLimitOrder(_ context.Context, symbol string, side Side, amount, stopPrice, limitPrice float64) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order := Order{
		ID:        g.nextID(),
		Symbol:    symbol,
		Side:      side,
		Type:      TypeStopLimit,
		Amount:    amount,
		Price:     limitPrice,
		StopPrice: stopPrice,
		Status:    StatusNew,
		Timestamp: time.Now().UTC(),
	}
	g.orders[order.ID] = order
	return order, nil
}

// CancelOrder 将挂单转为已撤销。已终态订单撤销报错。
func (g *PaperGateway) CancelOrder(_ context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return &GatewayError{Op: "cancel_order", Code: "paper", Message: fmt.Sprintf("订单 %s 不存在", orderID)}
	}
	if order.Status.Terminal() {
		return &GatewayError{Op: "cancel_order", Code: "paper", Message: fmt.Sprintf("订单 %s 已处于终态 %s", orderID, order.Status)}
	}

	order.Status = StatusCanceled
	g.orders[orderID] = order
	return nil
}

// GetOrderStatus 返回登记的订单快照。
func (g *PaperGateway) GetOrderStatus(_ context.Context, symbol, orderID string) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return Order{}, &GatewayError{Op: "get_order_status", Code: "paper", Message: fmt.Sprintf("订单 %s 不存在", orderID)}
	}
	return order, nil
}

// Fill 将一张挂单标记为全部成交，供模拟场景驱动网格回补。
func (g *PaperGateway) Fill(orderID string, price float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok || order.Status.Terminal() {
		return false
	}
	order.Filled = order.Amount
	order.AveragePrice = price
	order.Status = StatusFilled
	g.orders[orderID] = order
	return true
}

func (g *PaperGateway) nextID() string {
	g.seq++
	return "paper-" + strconv.FormatInt(g.seq, 10)
}
