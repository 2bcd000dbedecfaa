package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"futures-bot/internal/config"
)

// Client 基于 ccxt 实现 OrderGateway，负责与 Binance USDⓈ-M
// 测试网交互。读操作带重试，下单请求只发一次。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Binance USDⓈ-M 客户端，按配置启用沙盒模式。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// Raw 返回底层 ccxt 客户端，供余额查询等扩展使用。
func (c *Client) Raw() *ccxt.Binanceusdm {
	return c.exchange
}

// PlaceMarketOrder 提交市价单。委托数量与价格精度由 ccxt 按
// 市场元数据处理。
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side Side, amount float64) (Order, error) {
	return c.placeOrder(ctx, "place_market_order", func() (ccxt.Order, error) {
		return c.exchange.CreateMarketOrder(symbol, string(side), amount)
	})
}

// PlaceLimitOrder 提交限价单。
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side Side, amount, price float64, timeInForce string) (Order, error) {
	params := map[string]interface{}{}
	if timeInForce != "" {
		params["timeInForce"] = strings.ToUpper(timeInForce)
	}

	return c.placeOrder(ctx, "place_limit_order", func() (ccxt.Order, error) {
		var opts []ccxt.CreateLimitOrderOptions
		if len(params) > 0 {
			opts = append(opts, ccxt.WithCreateLimitOrderParams(params))
		}
		return c.exchange.CreateLimitOrder(symbol, string(side), amount, price, opts...)
	})
}

// PlaceStopLimitOrder 提交止损限价单：stopPrice 触发后以 limitPrice 挂单。
func (c *Client) PlaceStopLimitOrder(ctx context.Context, symbol string, side Side, amount, stopPrice, limitPrice float64) (Order, error) {
	params := map[string]interface{}{
		"stopPrice": stopPrice,
	}

	return c.placeOrder(ctx, "place_stop_limit_order", func() (ccxt.Order, error) {
		return c.exchange.CreateOrder(symbol, "limit", string(side), amount,
			ccxt.WithCreateOrderPrice(limitPrice),
			ccxt.WithCreateOrderParams(params),
		)
	})
}

// placeOrder 执行单次下单调用。下单不可重试：重复提交可能造成重复成交。
func (c *Client) placeOrder(ctx context.Context, op string, fn func() (ccxt.Order, error)) (Order, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return Order{}, wrapGatewayError(op, err)
	}
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}

	start := time.Now()
	raw, err := fn()
	if err != nil {
		gwErr := wrapGatewayError(op, err)
		c.logger.Error("下单请求失败",
			zap.String("operation", op),
			zap.Duration("latency", time.Since(start)),
			zap.Error(gwErr),
		)
		return Order{}, gwErr
	}

	order := convertOrder(raw)
	c.logger.Info("订单已提交",
		zap.String("operation", op),
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("amount", order.Amount),
		zap.String("status", string(order.Status)),
		zap.Duration("latency", time.Since(start)),
	)
	return order, nil
}

// CancelOrder 撤销指定订单。撤单幂等，允许重试。
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	err := c.callWithRetry(ctx, "cancel_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		_, err := c.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(symbol))
		return err
	})
	if err != nil {
		return wrapGatewayError("cancel_order", err)
	}

	c.logger.Info("订单已撤销", zap.String("order_id", orderID), zap.String("symbol", symbol))
	return nil
}

// GetOrderStatus 查询订单最新快照。
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (Order, error) {
	var raw ccxt.Order
	err := c.callWithRetry(ctx, "get_order_status", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOrder(orderID, ccxt.WithFetchOrderSymbol(symbol))
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return Order{}, wrapGatewayError("get_order_status", err)
	}

	return convertOrder(raw), nil
}

// OpenOrders 列出当前挂单。
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "open_orders", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOpenOrders(ccxt.WithFetchOpenOrdersSymbol(symbol))
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, wrapGatewayError("open_orders", err)
	}

	orders := make([]Order, 0, len(raw))
	for _, item := range raw {
		orders = append(orders, convertOrder(item))
	}
	return orders, nil
}

// OrderHistory 返回最近的历史订单。
func (c *Client) OrderHistory(ctx context.Context, symbol string, limit int64) ([]Order, error) {
	if limit <= 0 {
		limit = 10
	}

	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "order_history", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOrders(
			ccxt.WithFetchOrdersSymbol(symbol),
			ccxt.WithFetchOrdersLimit(limit),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, wrapGatewayError("order_history", err)
	}

	orders := make([]Order, 0, len(raw))
	for _, item := range raw {
		orders = append(orders, convertOrder(item))
	}
	return orders, nil
}

// LastPrice 返回最新成交价。
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := c.callWithRetry(ctx, "last_price", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		ticker, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}
		if ticker.Last == nil {
			return fmt.Errorf("交易对 %s 无最新成交价", symbol)
		}
		price = *ticker.Last
		return nil
	})
	if err != nil {
		return 0, wrapGatewayError("last_price", err)
	}
	return price, nil
}

// FetchCandles 获取指定周期的K线数据。
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOHLCV(symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, wrapGatewayError("fetch_candles", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Debug("市场元数据加载完成")
	return nil
}

// callWithRetry 对幂等调用做指数退避重试，维护状态立即上抛。
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		if ccxtErr.Type == ccxt.OnMaintenanceErrType {
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		}
		return err, IsRetryable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
