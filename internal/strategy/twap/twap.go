package twap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"futures-bot/internal/exchange"
)

// Plan 描述一次 TWAP 执行：把一张大单平均拆分为 Intervals 张
// 市价单，在 Duration 内等间隔提交。
type Plan struct {
	Symbol      string
	Side        exchange.Side
	TotalAmount float64
	Duration    time.Duration
	Intervals   int
}

// Validate 在任何网关调用之前做参数校验。
func (p Plan) Validate() error {
	var err error
	if p.Symbol == "" {
		err = multierr.Append(err, errors.New("twap: symbol 不能为空"))
	}
	if p.Side != exchange.SideBuy && p.Side != exchange.SideSell {
		err = multierr.Append(err, fmt.Errorf("twap: 非法方向 %q", p.Side))
	}
	if p.TotalAmount <= 0 {
		err = multierr.Append(err, errors.New("twap: total_amount 必须大于0"))
	}
	if p.Duration < 0 {
		err = multierr.Append(err, errors.New("twap: duration 不能为负"))
	}
	if p.Intervals < 1 {
		err = multierr.Append(err, errors.New("twap: intervals 必须不小于1"))
	}
	return err
}

// SliceAmount 返回单个区间的下单数量。
func (p Plan) SliceAmount() float64 {
	return p.TotalAmount / float64(p.Intervals)
}

// SliceInterval 返回相邻两次提交之间的暂停时长。
func (p Plan) SliceInterval() time.Duration {
	return p.Duration / time.Duration(p.Intervals)
}

// SliceResult 记录单个区间的结果：要么是订单快照，要么是被隔离的
// 网关错误。单区间失败不会中断整次执行。
type SliceResult struct {
	Index int
	Order exchange.Order
	Err   error
}

// OK 表示该区间提交成功。
func (r SliceResult) OK() bool {
	return r.Err == nil
}

// Summary 为执行完成后的统计结果。
type Summary struct {
	Attempted      int
	Succeeded      int
	FillCount      int
	TotalExecuted  float64
	AvgPrice       float64 // 无有效成交价时为 0
	SuccessRatePct float64
}

// Report 为一次 TWAP 执行的完整结果。
type Report struct {
	Plan    Plan
	Slices  []SliceResult
	Summary Summary
}

// Orders 返回成功提交的订单序列，顺序即提交顺序。
func (r Report) Orders() []exchange.Order {
	orders := make([]exchange.Order, 0, len(r.Slices))
	for _, slice := range r.Slices {
		if slice.OK() {
			orders = append(orders, slice.Order)
		}
	}
	return orders
}

// Executor 按计划切片提交市价单。
type Executor struct {
	gateway exchange.OrderGateway
	logger  *zap.Logger

	// 测试中替换以避免真实等待。
	wait func(ctx context.Context, d time.Duration) error
}

// NewExecutor 创建 TWAP 执行器。
func NewExecutor(gateway exchange.OrderGateway, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		gateway: gateway,
		logger:  logger,
		wait:    waitContext,
	}
}

// Run 顺序执行全部区间。单区间的网关失败记录后跳过；
// 区间之间的暂停响应 ctx 取消，取消时返回已有的部分结果。
func (e *Executor) Run(ctx context.Context, plan Plan) (Report, error) {
	if err := plan.Validate(); err != nil {
		return Report{}, err
	}

	sliceAmount := plan.SliceAmount()
	pause := plan.SliceInterval()

	e.logger.Info("开始 TWAP 执行",
		zap.String("symbol", plan.Symbol),
		zap.String("side", string(plan.Side)),
		zap.Float64("total_amount", plan.TotalAmount),
		zap.Int("intervals", plan.Intervals),
		zap.Float64("slice_amount", sliceAmount),
		zap.Duration("pause", pause),
	)

	report := Report{
		Plan:   plan,
		Slices: make([]SliceResult, 0, plan.Intervals),
	}

	for i := 1; i <= plan.Intervals; i++ {
		order, err := e.gateway.PlaceMarketOrder(ctx, plan.Symbol, plan.Side, sliceAmount)
		if err != nil {
			e.logger.Error("TWAP 区间提交失败，跳过",
				zap.Int("interval", i),
				zap.Int("total_intervals", plan.Intervals),
				zap.Error(err),
			)
			report.Slices = append(report.Slices, SliceResult{Index: i, Err: err})
		} else {
			e.logger.Info("TWAP 区间完成",
				zap.Int("interval", i),
				zap.Int("total_intervals", plan.Intervals),
				zap.String("order_id", order.ID),
			)
			report.Slices = append(report.Slices, SliceResult{Index: i, Order: order})
		}

		if i < plan.Intervals {
			if err := e.wait(ctx, pause); err != nil {
				report.Summary = summarize(report.Slices)
				return report, fmt.Errorf("twap: 执行被中断: %w", err)
			}
		}
	}

	report.Summary = summarize(report.Slices)
	e.logSummary(plan, report.Summary)

	return report, nil
}

// summarize 只统计成功提交的区间；均价取有效成交价的算术平均。
func summarize(slices []SliceResult) Summary {
	summary := Summary{Attempted: len(slices)}

	priceSum := 0.0
	priceCount := 0

	for _, slice := range slices {
		if !slice.OK() {
			continue
		}
		summary.Succeeded++
		summary.TotalExecuted += slice.Order.Filled
		if slice.Order.Status == exchange.StatusFilled {
			summary.FillCount++
		}
		if slice.Order.AveragePrice > 0 {
			priceSum += slice.Order.AveragePrice
			priceCount++
		}
	}

	if priceCount > 0 {
		summary.AvgPrice = priceSum / float64(priceCount)
	}
	if summary.Attempted > 0 {
		summary.SuccessRatePct = float64(summary.FillCount) / float64(summary.Attempted) * 100
	}

	return summary
}

func (e *Executor) logSummary(plan Plan, s Summary) {
	e.logger.Info("TWAP 执行统计",
		zap.String("symbol", plan.Symbol),
		zap.Int("attempted", s.Attempted),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("fill_count", s.FillCount),
		zap.Float64("total_executed", s.TotalExecuted),
		zap.Float64("avg_price", s.AvgPrice),
		zap.Float64("success_rate_pct", s.SuccessRatePct),
	)
}

// waitContext 阻塞等待 d，期间响应 ctx 取消。
func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
