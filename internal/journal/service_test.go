package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"futures-bot/internal/config"
	"futures-bot/internal/exchange"
	"futures-bot/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("初始化内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("初始化事件服务失败: %v", err)
	}
	return svc
}

func TestRecordAndListEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	order := exchange.Order{
		ID:     "1001",
		Symbol: "BTC/USDT:USDT",
		Side:   exchange.SideBuy,
		Type:   exchange.TypeLimit,
		Amount: 0.01,
		Price:  50000,
		Status: exchange.StatusNew,
	}
	svc.RecordOrderPlaced(ctx, order, "限价单")
	svc.RecordOrderFailed(ctx, OrderFailedPayload{
		Op:     "place_market_order",
		Symbol: "BTC/USDT:USDT",
		Side:   "sell",
		Amount: 0.02,
		Error:  "InsufficientFunds",
	})

	events, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("期望 2 条事件, 实际 %d", len(events))
	}
	// 逆序返回, 最新在前。
	if events[0].Type != EventOrderFailed || events[1].Type != EventOrderPlaced {
		t.Fatalf("事件顺序不符: %s, %s", events[0].Type, events[1].Type)
	}

	var payload OrderPayload
	if err := json.Unmarshal(events[1].Payload, &payload); err != nil {
		t.Fatalf("解析下单事件失败: %v", err)
	}
	if payload.Order.ID != "1001" || payload.Note != "限价单" {
		t.Fatalf("下单事件内容不符: %+v", payload)
	}
}

func TestListEventsFiltersByType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordOrderPlaced(ctx, exchange.Order{ID: "1"}, "")
	svc.RecordOrderCanceled(ctx, exchange.Order{ID: "2"})
	svc.RecordOrderCanceled(ctx, exchange.Order{ID: "3"})

	events, err := svc.ListEvents(ctx, EventOrderCanceled, 10)
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("期望 2 条撤单事件, 实际 %d", len(events))
	}
	for _, ev := range events {
		if ev.Type != EventOrderCanceled {
			t.Fatalf("过滤失效, 出现类型 %s", ev.Type)
		}
	}
}

func TestListEventsRespectsLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordError(ctx, "测试异常", context.DeadlineExceeded, nil)
	}

	events, err := svc.ListEvents(ctx, EventError, 3)
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("期望 3 条事件, 实际 %d", len(events))
	}
}

func TestRecordFillsTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if err := svc.Record(ctx, Event{Type: EventError, Payload: ErrorPayload{Message: "m", Error: "e"}}); err != nil {
		t.Fatalf("写入事件失败: %v", err)
	}

	events, err := svc.ListEvents(ctx, EventError, 1)
	if err != nil {
		t.Fatalf("查询事件失败: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("期望 1 条事件, 实际 %d", len(events))
	}
	if events[0].Timestamp.Before(before) {
		t.Fatalf("时间戳未自动填充: %v", events[0].Timestamp)
	}
}
