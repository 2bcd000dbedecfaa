package grid

import (
	"context"
	"math"
	"strconv"
	"testing"

	"futures-bot/internal/exchange"
)

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"valid", func(p *Params) {}, false},
		{"zero rungs", func(p *Params) { p.Rungs = 0 }, true},
		{"zero spacing", func(p *Params) { p.SpacingPct = 0 }, true},
		{"zero amount", func(p *Params) { p.AmountPerRung = 0 }, true},
		{"zero center", func(p *Params) { p.CenterPrice = 0 }, true},
		{"empty symbol", func(p *Params) { p.Symbol = "" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := baseParams()
			tc.mutate(&params)
			if err := params.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestSetup_PlacesSymmetricLadder(t *testing.T) {
	gw := newMockGateway()
	mgr := NewManager(gw, nil)

	params := baseParams() // center=100, spacing=1%, rungs=3

	report, err := mgr.Setup(context.Background(), params)
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}

	if report.Attempted != 6 || report.Succeeded != 6 {
		t.Fatalf("expected 6/6 placements, got %d/%d", report.Succeeded, report.Attempted)
	}

	wantBuys := []float64{99, 98, 97}
	wantSells := []float64{101, 102, 103}
	var buys, sells []float64
	for _, order := range mgr.ActiveOrders() {
		if order.Side == exchange.SideBuy {
			buys = append(buys, order.Price)
		} else {
			sells = append(sells, order.Price)
		}
	}

	assertPrices(t, "buy", buys, wantBuys)
	assertPrices(t, "sell", sells, wantSells)
}

func TestSetup_LegFailureLeavesOtherLegActive(t *testing.T) {
	gw := newMockGateway()
	gw.limitErr = func(side exchange.Side, price float64) error {
		if side == exchange.SideSell && math.Abs(price-102) < 1e-9 {
			return &exchange.GatewayError{Op: "place_limit_order", Code: "InvalidOrder", Message: "price out of band"}
		}
		return nil
	}
	mgr := NewManager(gw, nil)

	report, err := mgr.Setup(context.Background(), baseParams())
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}

	if report.Attempted != 6 {
		t.Errorf("expected 6 attempts, got %d", report.Attempted)
	}
	if report.Succeeded != 5 {
		t.Errorf("expected 5 successes, got %d", report.Succeeded)
	}
	if len(mgr.ActiveOrders()) != 5 {
		t.Errorf("expected 5 active orders, got %d", len(mgr.ActiveOrders()))
	}
}

func TestSetup_ReplacesPriorActiveSet(t *testing.T) {
	gw := newMockGateway()
	mgr := NewManager(gw, nil)

	if _, err := mgr.Setup(context.Background(), baseParams()); err != nil {
		t.Fatalf("first Setup: %v", err)
	}
	first := mgr.ActiveOrders()

	if _, err := mgr.Setup(context.Background(), baseParams()); err != nil {
		t.Fatalf("second Setup: %v", err)
	}
	second := mgr.ActiveOrders()

	if len(second) != 6 {
		t.Fatalf("expected 6 active orders after re-setup, got %d", len(second))
	}
	if first[0].ID == second[0].ID {
		t.Errorf("active set was not replaced")
	}
}

func TestCancelAll_AlwaysEmptiesActiveSet(t *testing.T) {
	gw := newMockGateway()
	mgr := NewManager(gw, nil)

	if _, err := mgr.Setup(context.Background(), baseParams()); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	failing := mgr.ActiveOrders()[2].ID
	gw.cancelErr = map[string]error{
		failing: &exchange.GatewayError{Op: "cancel_order", Code: "OrderNotFound", Message: "unknown order"},
	}

	canceled, err := mgr.CancelAll(context.Background(), baseParams().Symbol)
	if err != nil {
		t.Fatalf("CancelAll returned error: %v", err)
	}

	if canceled != 5 {
		t.Errorf("expected 5 successful cancellations, got %d", canceled)
	}
	if len(mgr.ActiveOrders()) != 0 {
		t.Errorf("active set must be empty after CancelAll, got %d", len(mgr.ActiveOrders()))
	}
}

func TestMonitorAndReplace_ReplacesFilledBuy(t *testing.T) {
	gw := newMockGateway()
	mgr := NewManager(gw, nil)
	params := baseParams()

	if _, err := mgr.Setup(context.Background(), params); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	var filledID string
	for _, order := range mgr.ActiveOrders() {
		if order.Side == exchange.SideBuy && math.Abs(order.Price-99) < 1e-9 {
			filledID = order.ID
			break
		}
	}
	gw.fill(filledID, 99)

	report, err := mgr.MonitorAndReplace(context.Background(), params)
	if err != nil {
		t.Fatalf("MonitorAndReplace returned error: %v", err)
	}

	if len(report.Filled) != 1 || report.Filled[0].ID != filledID {
		t.Fatalf("expected exactly the filled buy collected, got %+v", report.Filled)
	}
	if len(report.Replacements) != 1 {
		t.Fatalf("expected exactly 1 replacement, got %d", len(report.Replacements))
	}

	replacement := report.Replacements[0]
	if replacement.Side != exchange.SideSell {
		t.Errorf("replacement side = %s, want sell", replacement.Side)
	}
	if math.Abs(replacement.Price-101) > 1e-9 {
		t.Errorf("replacement price = %f, want 101", replacement.Price)
	}

	active := mgr.ActiveOrders()
	if len(active) != 6 {
		t.Fatalf("expected 6 active orders after replacement, got %d", len(active))
	}
	for _, order := range active {
		if order.ID == filledID {
			t.Errorf("filled order %s still tracked", filledID)
		}
	}
}

func TestMonitorAndReplace_Idempotent(t *testing.T) {
	gw := newMockGateway()
	mgr := NewManager(gw, nil)
	params := baseParams()

	if _, err := mgr.Setup(context.Background(), params); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	gw.fill(mgr.ActiveOrders()[0].ID, 99)

	if _, err := mgr.MonitorAndReplace(context.Background(), params); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	before := mgr.ActiveOrders()

	report, err := mgr.MonitorAndReplace(context.Background(), params)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(report.Filled) != 0 || len(report.Replacements) != 0 {
		t.Errorf("second pass must be a no-op, got %+v", report)
	}

	after := mgr.ActiveOrders()
	if len(before) != len(after) {
		t.Fatalf("active set changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Errorf("order %d changed: %s -> %s", i, before[i].ID, after[i].ID)
		}
	}
}

func TestMonitorAndReplace_NonFilledTerminalStaysTracked(t *testing.T) {
	gw := newMockGateway()
	mgr := NewManager(gw, nil)
	params := baseParams()

	if _, err := mgr.Setup(context.Background(), params); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	canceledID := mgr.ActiveOrders()[1].ID
	gw.setStatus(canceledID, exchange.StatusCanceled)

	report, err := mgr.MonitorAndReplace(context.Background(), params)
	if err != nil {
		t.Fatalf("MonitorAndReplace returned error: %v", err)
	}
	if len(report.Filled) != 0 {
		t.Errorf("canceled order must not trigger replacement")
	}

	found := false
	for _, order := range mgr.ActiveOrders() {
		if order.ID == canceledID {
			found = true
		}
	}
	if !found {
		t.Errorf("canceled order dropped from tracking; inherited behavior keeps it")
	}
}

func TestMonitorAndReplace_QueryFailureSkipped(t *testing.T) {
	gw := newMockGateway()
	mgr := NewManager(gw, nil)
	params := baseParams()

	if _, err := mgr.Setup(context.Background(), params); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	flaky := mgr.ActiveOrders()[0].ID
	gw.statusErr = map[string]error{
		flaky: &exchange.GatewayError{Op: "get_order_status", Code: "NetworkError", Message: "connection reset"},
	}

	report, err := mgr.MonitorAndReplace(context.Background(), params)
	if err != nil {
		t.Fatalf("MonitorAndReplace returned error: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("expected 1 skipped unit, got %d", report.Skipped)
	}
	if len(mgr.ActiveOrders()) != 6 {
		t.Errorf("query failure must keep the order tracked")
	}
}

func baseParams() Params {
	return Params{
		Symbol:        "BTC/USDT:USDT",
		CenterPrice:   100,
		SpacingPct:    1,
		Rungs:         3,
		AmountPerRung: 0.01,
		TimeInForce:   "GTC",
	}
}

func assertPrices(t *testing.T, side string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s orders: got %d, want %d", side, len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("%s price %d = %f, want %f", side, i, got[i], want[i])
		}
	}
}

// mockGateway 在内存中登记限价单，测试通过 fill/setStatus 驱动状态。
type mockGateway struct {
	seq       int
	orders    map[string]exchange.Order
	limitErr  func(side exchange.Side, price float64) error
	cancelErr map[string]error
	statusErr map[string]error
	canceled  []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{orders: make(map[string]exchange.Order)}
}

func (m *mockGateway) fill(orderID string, price float64) {
	order := m.orders[orderID]
	order.Filled = order.Amount
	order.AveragePrice = price
	order.Status = exchange.StatusFilled
	m.orders[orderID] = order
}

func (m *mockGateway) setStatus(orderID string, status exchange.Status) {
	order := m.orders[orderID]
	order.Status = status
	m.orders[orderID] = order
}

func (m *mockGateway) PlaceMarketOrder(context.Context, string, exchange.Side, float64) (exchange.Order, error) {
	return exchange.Order{}, &exchange.GatewayError{Op: "place_market_order", Message: "not expected"}
}

func (m *mockGateway) PlaceLimitOrder(_ context.Context, symbol string, side exchange.Side, amount, price float64, tif string) (exchange.Order, error) {
	if m.limitErr != nil {
		if err := m.limitErr(side, price); err != nil {
			return exchange.Order{}, err
		}
	}
	m.seq++
	order := exchange.Order{
		ID:          "mock-" + strconv.Itoa(m.seq),
		Symbol:      symbol,
		Side:        side,
		Type:        exchange.TypeLimit,
		Amount:      amount,
		Price:       price,
		TimeInForce: tif,
		Status:      exchange.StatusNew,
	}
	m.orders[order.ID] = order
	return order, nil
}

func (m *mockGateway) PlaceStopLimitOrder(context.Context, string, exchange.Side, float64, float64, float64) (exchange.Order, error) {
	return exchange.Order{}, &exchange.GatewayError{Op: "place_stop_limit_order", Message: "not expected"}
}

func (m *mockGateway) CancelOrder(_ context.Context, _ string, orderID string) error {
	if err := m.cancelErr[orderID]; err != nil {
		return err
	}
	m.canceled = append(m.canceled, orderID)
	order := m.orders[orderID]
	order.Status = exchange.StatusCanceled
	m.orders[orderID] = order
	return nil
}

func (m *mockGateway) GetOrderStatus(_ context.Context, _ string, orderID string) (exchange.Order, error) {
	if err := m.statusErr[orderID]; err != nil {
		return exchange.Order{}, err
	}
	order, ok := m.orders[orderID]
	if !ok {
		return exchange.Order{}, &exchange.GatewayError{Op: "get_order_status", Message: "unknown order"}
	}
	return order, nil
}
