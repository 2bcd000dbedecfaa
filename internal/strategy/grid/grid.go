package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"futures-bot/internal/exchange"
)

// Params 描述一个对称网格：以 CenterPrice 为中心，按 SpacingPct
// 百分比间距在下方挂买单、上方挂卖单，各 Rungs 档。
type Params struct {
	Symbol        string
	CenterPrice   float64
	SpacingPct    float64
	Rungs         int
	AmountPerRung float64
	TimeInForce   string
}

// Validate 在任何网关调用之前做参数校验。
func (p Params) Validate() error {
	var err error
	if p.Symbol == "" {
		err = multierr.Append(err, errors.New("grid: symbol 不能为空"))
	}
	if p.CenterPrice <= 0 {
		err = multierr.Append(err, errors.New("grid: center_price 必须大于0"))
	}
	if p.SpacingPct <= 0 {
		err = multierr.Append(err, errors.New("grid: spacing_pct 必须大于0"))
	}
	if p.Rungs < 1 {
		err = multierr.Append(err, errors.New("grid: rungs 必须不小于1"))
	}
	if p.AmountPerRung <= 0 {
		err = multierr.Append(err, errors.New("grid: amount_per_rung 必须大于0"))
	}
	return err
}

// BuyPrice 返回第 i 档（1 起始）的买入价。
func (p Params) BuyPrice(i int) float64 {
	return p.CenterPrice * (1 - p.SpacingPct/100*float64(i))
}

// SellPrice 返回第 i 档（1 起始）的卖出价。
func (p Params) SellPrice(i int) float64 {
	return p.CenterPrice * (1 + p.SpacingPct/100*float64(i))
}

// Report 汇总一次网格操作中尝试与成功的单元数。
type Report struct {
	Attempted int
	Succeeded int
	Orders    []exchange.Order
}

// CycleReport 为一轮 monitor 巡检的结果。
type CycleReport struct {
	Checked      int
	Filled       []exchange.Order
	Replacements []exchange.Order
	Skipped      int // 查询或回补失败而被跳过的单元数
}

// Manager 维护网格的在挂订单集合。集合按提交顺序保存，
// 由互斥锁保护：巡检由定时器驱动，撤单可能来自用户协程。
type Manager struct {
	gateway exchange.OrderGateway
	logger  *zap.Logger

	mu     sync.Mutex
	active []exchange.Order
}

// NewManager 创建网格管理器。
func NewManager(gateway exchange.OrderGateway, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		gateway: gateway,
		logger:  logger,
	}
}

// ActiveOrders 返回在挂订单集合的副本。
func (m *Manager) ActiveOrders() []exchange.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]exchange.Order, len(m.active))
	copy(orders, m.active)
	return orders
}

// Setup 铺设网格：每一档先挂买腿再挂卖腿，单腿失败记录后跳过，
// 已挂出的另一腿保持在挂。成功的订单替换掉之前的在挂集合。
func (m *Manager) Setup(ctx context.Context, params Params) (Report, error) {
	if err := params.Validate(); err != nil {
		return Report{}, err
	}

	m.logger.Info("开始铺设网格",
		zap.String("symbol", params.Symbol),
		zap.Float64("center_price", params.CenterPrice),
		zap.Float64("spacing_pct", params.SpacingPct),
		zap.Int("rungs", params.Rungs),
		zap.Float64("amount_per_rung", params.AmountPerRung),
	)

	report := Report{}
	placed := make([]exchange.Order, 0, params.Rungs*2)

	for i := 1; i <= params.Rungs; i++ {
		legs := []struct {
			side  exchange.Side
			price float64
		}{
			{exchange.SideBuy, params.BuyPrice(i)},
			{exchange.SideSell, params.SellPrice(i)},
		}

		for _, leg := range legs {
			report.Attempted++
			order, err := m.gateway.PlaceLimitOrder(ctx, params.Symbol, leg.side, params.AmountPerRung, leg.price, params.TimeInForce)
			if err != nil {
				m.logger.Error("网格挂单失败，跳过该腿",
					zap.Int("rung", i),
					zap.String("side", string(leg.side)),
					zap.Float64("price", leg.price),
					zap.Error(err),
				)
				continue
			}
			report.Succeeded++
			placed = append(placed, order)
		}

		m.logger.Info("网格档位已处理",
			zap.Int("rung", i),
			zap.Float64("buy_price", params.BuyPrice(i)),
			zap.Float64("sell_price", params.SellPrice(i)),
		)
	}

	m.mu.Lock()
	m.active = placed
	m.mu.Unlock()

	report.Orders = placed
	m.logger.Info("网格铺设完成",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
	)

	return report, nil
}

// CancelAll 尽力撤销全部在挂订单并统计成功数。无论撤销结果如何，
// 在挂集合都被清空：撤销失败的订单从此不再被追踪。
func (m *Manager) CancelAll(ctx context.Context, symbol string) (int, error) {
	m.mu.Lock()
	orders := m.active
	m.active = nil
	m.mu.Unlock()

	canceled := 0
	for _, order := range orders {
		if err := m.gateway.CancelOrder(ctx, symbol, order.ID); err != nil {
			m.logger.Warn("撤销网格订单失败，放弃追踪",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			continue
		}
		canceled++
	}

	m.logger.Info("网格订单已清理",
		zap.Int("tracked", len(orders)),
		zap.Int("canceled", canceled),
	)

	return canceled, nil
}

// MonitorAndReplace 做单轮巡检：查询每张在挂订单，收集已成交的，
// 将其从集合移除并在对侧一个间距处回补。查询失败与回补失败都
// 记录后跳过，不中断本轮。调用方负责按周期反复调用。
func (m *Manager) MonitorAndReplace(ctx context.Context, params Params) (CycleReport, error) {
	if err := params.Validate(); err != nil {
		return CycleReport{}, err
	}

	m.mu.Lock()
	tracked := make([]exchange.Order, len(m.active))
	copy(tracked, m.active)
	m.mu.Unlock()

	report := CycleReport{Checked: len(tracked)}
	remaining := make([]exchange.Order, 0, len(tracked))
	filled := make([]exchange.Order, 0)

	for _, order := range tracked {
		snapshot, err := m.gateway.GetOrderStatus(ctx, params.Symbol, order.ID)
		if err != nil {
			m.logger.Warn("查询网格订单状态失败，跳过",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			report.Skipped++
			remaining = append(remaining, order)
			continue
		}

		switch snapshot.Status {
		case exchange.StatusFilled:
			m.logger.Info("网格订单已成交",
				zap.String("order_id", snapshot.ID),
				zap.String("side", string(snapshot.Side)),
				zap.Float64("avg_price", snapshot.AveragePrice),
			)
			filled = append(filled, snapshot)
		case exchange.StatusCanceled, exchange.StatusRejected, exchange.StatusExpired:
			// 沿用原始行为：非成交终态不触发回补，订单滞留在集合中。
			m.logger.Warn("网格订单处于非成交终态，仍保留追踪",
				zap.String("order_id", snapshot.ID),
				zap.String("status", string(snapshot.Status)),
			)
			remaining = append(remaining, order)
		default:
			remaining = append(remaining, order)
		}
	}

	report.Filled = filled

	for _, fill := range filled {
		side := fill.Side.Opposite()
		var price float64
		if side == exchange.SideSell {
			price = params.CenterPrice * (1 + params.SpacingPct/100)
		} else {
			price = params.CenterPrice * (1 - params.SpacingPct/100)
		}

		replacement, err := m.gateway.PlaceLimitOrder(ctx, params.Symbol, side, params.AmountPerRung, price, params.TimeInForce)
		if err != nil {
			m.logger.Error("回补网格订单失败，跳过",
				zap.String("filled_order_id", fill.ID),
				zap.String("side", string(side)),
				zap.Float64("price", price),
				zap.Error(err),
			)
			report.Skipped++
			continue
		}

		m.logger.Info("已回补网格订单",
			zap.String("filled_order_id", fill.ID),
			zap.String("order_id", replacement.ID),
			zap.String("side", string(side)),
			zap.Float64("price", price),
		)
		remaining = append(remaining, replacement)
		report.Replacements = append(report.Replacements, replacement)
	}

	m.mu.Lock()
	m.active = remaining
	m.mu.Unlock()

	if len(filled) > 0 || report.Skipped > 0 {
		m.logger.Info("网格巡检完成",
			zap.Int("checked", report.Checked),
			zap.Int("filled", len(report.Filled)),
			zap.Int("replacements", len(report.Replacements)),
			zap.Int("skipped", report.Skipped),
		)
	}

	return report, nil
}

// String 便于日志与事件载荷展示。
func (p Params) String() string {
	return fmt.Sprintf("%s center=%.6f spacing=%.2f%% rungs=%d amount=%.6f",
		p.Symbol, p.CenterPrice, p.SpacingPct, p.Rungs, p.AmountPerRung)
}
