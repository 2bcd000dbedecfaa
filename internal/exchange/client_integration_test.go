//go:build integration
// +build integration

package exchange

import (
	"context"
	"os"
	"testing"
	"time"

	"futures-bot/internal/config"
)

// 在测试网上走一遍完整的订单生命周期：挂一张远离盘口的限价单，
// 查询状态，然后撤销。需要 BOT_EXCHANGE_API_KEY / BOT_EXCHANGE_API_SECRET。
func TestClientIntegration_OrderLifecycle(t *testing.T) {
	configPath := os.Getenv("BOT_CONFIG")
	if configPath == "" {
		configPath = "../../configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if !cfg.Exchange.UseSandbox {
		t.Skip("exchange.use_sandbox=false，出于安全考虑跳过真实下单测试")
	}
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		t.Skip("缺少 API 凭证，跳过测试")
	}

	client, err := NewClient(cfg.Exchange, nil)
	if err != nil {
		t.Fatalf("初始化客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	symbol := cfg.Exchange.Symbol

	last, err := client.LastPrice(ctx, symbol)
	if err != nil {
		t.Fatalf("获取最新价失败: %v", err)
	}
	if last <= 0 {
		t.Fatalf("最新价非法: %v", last)
	}

	// 挂在盘口下方 20% 避免成交。
	price := last * 0.8
	order, err := client.PlaceLimitOrder(ctx, symbol, SideBuy, 0.002, price, "GTC")
	if err != nil {
		t.Fatalf("限价下单失败: %v", err)
	}
	if order.ID == "" {
		t.Fatal("订单ID为空")
	}
	t.Logf("已挂单: id=%s price=%.2f", order.ID, price)

	snapshot, err := client.GetOrderStatus(ctx, symbol, order.ID)
	if err != nil {
		t.Fatalf("查询订单状态失败: %v", err)
	}
	if snapshot.Status.Terminal() {
		t.Fatalf("远离盘口的限价单不应处于终态: %s", snapshot.Status)
	}

	if err := client.CancelOrder(ctx, symbol, order.ID); err != nil {
		t.Fatalf("撤单失败: %v", err)
	}

	final, err := client.GetOrderStatus(ctx, symbol, order.ID)
	if err != nil {
		t.Fatalf("查询撤单后状态失败: %v", err)
	}
	if final.Status != StatusCanceled {
		t.Fatalf("撤单后状态应为 canceled, 实际 %s", final.Status)
	}
}
