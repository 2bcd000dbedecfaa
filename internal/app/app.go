package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"futures-bot/internal/account"
	"futures-bot/internal/config"
	"futures-bot/internal/exchange"
	"futures-bot/internal/indicator"
	"futures-bot/internal/journal"
	"futures-bot/internal/market"
	"futures-bot/internal/store"
	"futures-bot/internal/strategy/grid"
	"futures-bot/internal/strategy/twap"
)

// App 聚合核心依赖，将 CLI 子命令映射到各业务组件。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	journal *journal.Service

	client  *exchange.Client
	gateway exchange.OrderGateway
	paper   *exchange.PaperGateway

	market  *market.Service
	account *account.Manager
	twap    *twap.Executor
	grid    *grid.Manager
}

// New 创建 App 实例并完成组件装配。dry-run 模式下下单走内存撮合，
// 行情与账户查询仍走真实客户端。
func New(cfg *config.Config, logger *zap.Logger, sqliteStore *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	journalSvc, err := journal.NewService(sqliteStore, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化事件日志失败: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		journal: journalSvc,
		client:  client,
		gateway: client,
		market:  market.NewService(client, logger),
		account: account.NewManager(client.Raw(), logger),
	}

	if cfg.Execution.DryRun {
		logger.Info("dry-run 模式已开启，订单走内存撮合")
		a.paper = exchange.NewPaperGateway(0)
		a.gateway = a.paper
	}

	a.twap = twap.NewExecutor(a.gateway, logger)
	a.grid = grid.NewManager(a.gateway, logger)

	return a, nil
}

func (a *App) symbol() string {
	return a.cfg.Exchange.Symbol
}

// refreshMark 在 dry-run 模式下用真实行情刷新纸面网关的标记价。
func (a *App) refreshMark(ctx context.Context) error {
	if a.paper == nil {
		return nil
	}
	price, err := a.client.LastPrice(ctx, a.symbol())
	if err != nil {
		return fmt.Errorf("获取标记价失败: %w", err)
	}
	a.paper.SetMarkPrice(price)
	return nil
}

// PlaceMarket 提交市价单。
func (a *App) PlaceMarket(ctx context.Context, side exchange.Side, amount float64) error {
	if err := a.refreshMark(ctx); err != nil {
		return err
	}

	order, err := a.gateway.PlaceMarketOrder(ctx, a.symbol(), side, amount)
	if err != nil {
		a.journal.RecordOrderFailed(ctx, journal.OrderFailedPayload{
			Op:     "place_market_order",
			Symbol: a.symbol(),
			Side:   string(side),
			Amount: amount,
			Error:  err.Error(),
		})
		return err
	}

	a.journal.RecordOrderPlaced(ctx, order, "市价单")
	printOrder(order)
	return nil
}

// PlaceLimit 提交限价单，time-in-force 取自配置。
func (a *App) PlaceLimit(ctx context.Context, side exchange.Side, amount, price float64) error {
	order, err := a.gateway.PlaceLimitOrder(ctx, a.symbol(), side, amount, price, a.cfg.Execution.TimeInForce)
	if err != nil {
		a.journal.RecordOrderFailed(ctx, journal.OrderFailedPayload{
			Op:     "place_limit_order",
			Symbol: a.symbol(),
			Side:   string(side),
			Amount: amount,
			Price:  price,
			Error:  err.Error(),
		})
		return err
	}

	a.journal.RecordOrderPlaced(ctx, order, "限价单")
	printOrder(order)
	return nil
}

// PlaceStopLimit 提交止损限价单。
func (a *App) PlaceStopLimit(ctx context.Context, side exchange.Side, amount, stopPrice, limitPrice float64) error {
	order, err := a.gateway.PlaceStopLimitOrder(ctx, a.symbol(), side, amount, stopPrice, limitPrice)
	if err != nil {
		a.journal.RecordOrderFailed(ctx, journal.OrderFailedPayload{
			Op:     "place_stop_limit_order",
			Symbol: a.symbol(),
			Side:   string(side),
			Amount: amount,
			Price:  limitPrice,
			Error:  err.Error(),
		})
		return err
	}

	a.journal.RecordOrderPlaced(ctx, order, "止损限价单")
	printOrder(order)
	return nil
}

// PlaceOCO 提交一组止盈/止损订单：同方向的限价止盈单与止损限价单。
// 两张订单相互独立，任一成交后另一张需要手动撤销。
func (a *App) PlaceOCO(ctx context.Context, side exchange.Side, amount, takeProfit, stopPrice, stopLimit float64) error {
	limit, err := a.gateway.PlaceLimitOrder(ctx, a.symbol(), side, amount, takeProfit, a.cfg.Execution.TimeInForce)
	if err != nil {
		a.journal.RecordOrderFailed(ctx, journal.OrderFailedPayload{
			Op:     "place_oco_limit",
			Symbol: a.symbol(),
			Side:   string(side),
			Amount: amount,
			Price:  takeProfit,
			Error:  err.Error(),
		})
		return fmt.Errorf("止盈腿下单失败: %w", err)
	}
	a.journal.RecordOrderPlaced(ctx, limit, "OCO止盈腿")
	printOrder(limit)

	stop, err := a.gateway.PlaceStopLimitOrder(ctx, a.symbol(), side, amount, stopPrice, stopLimit)
	if err != nil {
		a.journal.RecordOrderFailed(ctx, journal.OrderFailedPayload{
			Op:     "place_oco_stop",
			Symbol: a.symbol(),
			Side:   string(side),
			Amount: amount,
			Price:  stopLimit,
			Error:  err.Error(),
		})
		return fmt.Errorf("止损腿下单失败，止盈单 %s 仍在挂单: %w", limit.ID, err)
	}
	a.journal.RecordOrderPlaced(ctx, stop, "OCO止损腿")
	printOrder(stop)

	a.logger.Warn("两张订单无交易所级联动，任一成交后需手动撤销另一张",
		zap.String("limit_order", limit.ID),
		zap.String("stop_order", stop.ID),
	)
	return nil
}

// Cancel 撤销指定订单。
func (a *App) Cancel(ctx context.Context, orderID string) error {
	if err := a.gateway.CancelOrder(ctx, a.symbol(), orderID); err != nil {
		a.journal.RecordOrderFailed(ctx, journal.OrderFailedPayload{
			Op:     "cancel_order",
			Symbol: a.symbol(),
			Error:  err.Error(),
		})
		return err
	}

	a.journal.RecordOrderCanceled(ctx, exchange.Order{ID: orderID, Symbol: a.symbol(), Status: exchange.StatusCanceled})
	fmt.Printf("订单 %s 已撤销\n", orderID)
	return nil
}

// Status 查询单个订单状态。
func (a *App) Status(ctx context.Context, orderID string) error {
	order, err := a.gateway.GetOrderStatus(ctx, a.symbol(), orderID)
	if err != nil {
		return err
	}
	printOrder(order)
	return nil
}

// OpenOrders 列出当前在挂订单。
func (a *App) OpenOrders(ctx context.Context) error {
	orders, err := a.client.OpenOrders(ctx, a.symbol())
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println("当前没有在挂订单")
		return nil
	}
	for _, order := range orders {
		printOrder(order)
	}
	return nil
}

// History 列出最近的历史订单。
func (a *App) History(ctx context.Context, limit int64) error {
	orders, err := a.client.OrderHistory(ctx, a.symbol(), limit)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println("没有历史订单")
		return nil
	}
	for _, order := range orders {
		printOrder(order)
	}
	return nil
}

// Balance 打印账户资金快照。
func (a *App) Balance(ctx context.Context) error {
	snapshot, err := a.account.Fetch(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("总权益: %.4f USDT\n", snapshot.TotalEquity)
	fmt.Printf("钱包余额: %.4f USDT\n", snapshot.WalletUSDT)
	fmt.Printf("可用: %.4f USDT  占用: %.4f USDT\n", snapshot.FreeUSDT, snapshot.UsedUSDT)
	fmt.Printf("未实现盈亏: %.4f USDT\n", snapshot.Unrealized)
	return nil
}

// Price 打印最新成交价。
func (a *App) Price(ctx context.Context) error {
	price, err := a.client.LastPrice(ctx, a.symbol())
	if err != nil {
		return err
	}
	fmt.Printf("%s 最新价: %.4f\n", a.symbol(), price)
	return nil
}

// RunTWAP 执行 TWAP 计划并输出汇总。
func (a *App) RunTWAP(ctx context.Context, side exchange.Side, total float64, duration time.Duration, intervals int) error {
	if intervals <= 0 {
		intervals = a.cfg.TWAP.Intervals
	}
	if err := a.refreshMark(ctx); err != nil {
		return err
	}

	plan := twap.Plan{
		Symbol:      a.symbol(),
		Side:        side,
		TotalAmount: total,
		Duration:    duration,
		Intervals:   intervals,
	}

	report, runErr := a.twap.Run(ctx, plan)
	a.journal.RecordTWAPRun(ctx, report)

	fmt.Printf("TWAP 执行完成: 提交 %d/%d, 已成交 %.6f, 均价 %.4f, 成功率 %.1f%%\n",
		report.Summary.Succeeded, report.Summary.Attempted,
		report.Summary.TotalExecuted, report.Summary.AvgPrice,
		report.Summary.SuccessRatePct,
	)
	for _, slice := range report.Slices {
		if slice.OK() {
			fmt.Printf("  区间 %d: 订单 %s 状态 %s\n", slice.Index+1, slice.Order.ID, slice.Order.Status)
		} else {
			fmt.Printf("  区间 %d: 失败 (%v)\n", slice.Index+1, slice.Err)
		}
	}

	if runErr != nil {
		a.journal.RecordError(ctx, "TWAP执行中断", runErr, map[string]interface{}{"symbol": plan.Symbol})
		return runErr
	}
	return nil
}

// GridParams 根据命令行输入组装网格参数。center 或 spacing 为 0 时
// 用行情自动推导：中心价取最新价，间距取相对ATR。
func (a *App) GridParams(ctx context.Context, center, spacingPct float64, rungs int, amountPerRung float64) (grid.Params, error) {
	if center <= 0 || spacingPct <= 0 {
		snapshot, err := a.market.GetSnapshot(ctx, a.symbol(), a.cfg.Grid.AutoTimeframe, int64(a.cfg.Grid.AutoCandles))
		if err != nil {
			return grid.Params{}, fmt.Errorf("拉取行情失败，无法推导网格参数: %w", err)
		}
		series := indicator.NewSeries(snapshot.Candles)

		if center <= 0 {
			center = snapshot.LastPrice
		}
		if spacingPct <= 0 {
			rel, err := indicator.RelativeATR(series, indicator.ATRPeriod)
			if err != nil {
				return grid.Params{}, fmt.Errorf("计算ATR失败，无法推导网格间距: %w", err)
			}
			spacingPct = rel * 100
		}
		a.logger.Info("网格参数自动推导完成",
			zap.Float64("center", center),
			zap.Float64("spacing_pct", spacingPct),
		)
	}

	return grid.Params{
		Symbol:        a.symbol(),
		CenterPrice:   center,
		SpacingPct:    spacingPct,
		Rungs:         rungs,
		AmountPerRung: amountPerRung,
		TimeInForce:   a.cfg.Execution.TimeInForce,
	}, nil
}

// RunGrid 铺设网格并进入巡检循环，直到 ctx 被取消后撤销全部挂单。
func (a *App) RunGrid(ctx context.Context, params grid.Params) error {
	if a.cfg.Journal.HTTPPort > 0 {
		if err := journal.StartServer(ctx, a.journal, a.cfg.Journal.HTTPPort, a.logger); err != nil {
			return err
		}
	}

	report, err := a.grid.Setup(ctx, params)
	a.journal.RecordGridSetup(ctx, params, report)
	if err != nil {
		return err
	}
	fmt.Printf("网格已铺设: %d/%d 档成功\n", report.Succeeded, report.Attempted)
	for _, order := range report.Orders {
		printOrder(order)
	}

	ticker := time.NewTicker(a.cfg.Grid.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return a.teardownGrid(params.Symbol)
		case <-ticker.C:
			cycle, err := a.grid.MonitorAndReplace(ctx, params)
			if err != nil {
				a.logger.Error("网格巡检失败", zap.Error(err))
				a.journal.RecordError(ctx, "网格巡检失败", err, map[string]interface{}{"symbol": params.Symbol})
				continue
			}
			if cycle.Checked > 0 {
				a.journal.RecordGridCycle(ctx, params, cycle)
			}
			if len(cycle.Filled) > 0 {
				fmt.Printf("本轮成交 %d 档, 回补 %d 档\n", len(cycle.Filled), len(cycle.Replacements))
			}
		}
	}
}

// teardownGrid 在退出时撤销剩余挂单。原 ctx 已取消，用独立的
// 超时上下文保证撤单请求能发出去。
func (a *App) teardownGrid(symbol string) error {
	a.logger.Info("收到退出信号，撤销剩余网格挂单")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	canceled, err := a.grid.CancelAll(ctx, symbol)
	if err != nil {
		a.journal.RecordError(ctx, "网格撤单失败", err, map[string]interface{}{"symbol": symbol})
		return err
	}
	fmt.Printf("网格已退出, 撤销 %d 张挂单\n", canceled)
	return nil
}

// Events 打印最近的事件日志。
func (a *App) Events(ctx context.Context, eventType string, limit int) error {
	events, err := a.journal.ListEvents(ctx, journal.EventType(eventType), limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("没有符合条件的事件")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(os.Stdout, "[%s] #%d %s %s\n",
			ev.Timestamp.Format(time.RFC3339), ev.ID, ev.Type, string(ev.Payload))
	}
	return nil
}

func printOrder(order exchange.Order) {
	line := fmt.Sprintf("订单 %s  %s %s %s  数量 %.6f", order.ID, order.Symbol, order.Side, order.Type, order.Amount)
	if order.Price > 0 {
		line += fmt.Sprintf("  价格 %.4f", order.Price)
	}
	if order.StopPrice > 0 {
		line += fmt.Sprintf("  触发价 %.4f", order.StopPrice)
	}
	line += fmt.Sprintf("  状态 %s", order.Status)
	if order.Filled > 0 {
		line += fmt.Sprintf("  已成交 %.6f", order.Filled)
		if order.AveragePrice > 0 {
			line += fmt.Sprintf("@%.4f", order.AveragePrice)
		}
	}
	fmt.Println(line)
}
