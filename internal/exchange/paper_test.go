package exchange

import (
	"context"
	"testing"
)

func TestPaperGateway_MarketOrderFillsAtMark(t *testing.T) {
	g := NewPaperGateway(50000)
	ctx := context.Background()

	order, err := g.PlaceMarketOrder(ctx, "BTC/USDT:USDT", SideBuy, 0.5)
	if err != nil {
		t.Fatalf("市价下单失败: %v", err)
	}
	if order.Status != StatusFilled {
		t.Fatalf("市价单应立即成交, 实际 %s", order.Status)
	}
	if order.Filled != 0.5 || order.AveragePrice != 50000 {
		t.Fatalf("成交明细不符: filled=%v avg=%v", order.Filled, order.AveragePrice)
	}
}

func TestPaperGateway_MarketOrderRequiresMark(t *testing.T) {
	g := NewPaperGateway(0)

	_, err := g.PlaceMarketOrder(context.Background(), "BTC/USDT:USDT", SideBuy, 1)
	if err == nil {
		t.Fatal("标记价缺失时应报错")
	}
	gwErr, ok := AsGatewayError(err)
	if !ok {
		t.Fatalf("应返回 GatewayError, 实际 %T", err)
	}
	if gwErr.Op != "place_market_order" {
		t.Fatalf("操作名不符: %s", gwErr.Op)
	}
}

func TestPaperGateway_LimitOrderLifecycle(t *testing.T) {
	g := NewPaperGateway(100)
	ctx := context.Background()

	order, err := g.PlaceLimitOrder(ctx, "BTC/USDT:USDT", SideSell, 1, 110, "GTC")
	if err != nil {
		t.Fatalf("限价下单失败: %v", err)
	}
	if order.Status != StatusNew {
		t.Fatalf("限价单应保持挂单, 实际 %s", order.Status)
	}

	if !g.Fill(order.ID, 110) {
		t.Fatal("Fill 应成功")
	}
	snapshot, err := g.GetOrderStatus(ctx, order.Symbol, order.ID)
	if err != nil {
		t.Fatalf("查询状态失败: %v", err)
	}
	if snapshot.Status != StatusFilled || snapshot.AveragePrice != 110 {
		t.Fatalf("成交后状态不符: %+v", snapshot)
	}

	// 已终态订单不可撤销、不可再次成交。
	if err := g.CancelOrder(ctx, order.Symbol, order.ID); err == nil {
		t.Fatal("撤销已成交订单应报错")
	}
	if g.Fill(order.ID, 120) {
		t.Fatal("重复 Fill 应失败")
	}
}

func TestPaperGateway_CancelOpenOrder(t *testing.T) {
	g := NewPaperGateway(100)
	ctx := context.Background()

	order, err := g.PlaceStopLimitOrder(ctx, "BTC/USDT:USDT", SideSell, 1, 95, 94)
	if err != nil {
		t.Fatalf("止损限价下单失败: %v", err)
	}

	if err := g.CancelOrder(ctx, order.Symbol, order.ID); err != nil {
		t.Fatalf("撤单失败: %v", err)
	}
	snapshot, err := g.GetOrderStatus(ctx, order.Symbol, order.ID)
	if err != nil {
		t.Fatalf("查询状态失败: %v", err)
	}
	if snapshot.Status != StatusCanceled {
		t.Fatalf("撤单后状态应为 canceled, 实际 %s", snapshot.Status)
	}
}
