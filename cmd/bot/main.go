package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"futures-bot/internal/app"
	"futures-bot/internal/config"
	"futures-bot/internal/exchange"
	"futures-bot/internal/log"
	"futures-bot/internal/store"
)

const usage = `用法: bot [全局选项] <命令> [命令选项]

命令:
  market      提交市价单
  limit       提交限价单
  stop-limit  提交止损限价单
  oco         提交止盈/止损订单组
  cancel      撤销订单
  status      查询订单状态
  open        列出在挂订单
  history     列出历史订单
  balance     查询账户余额
  price       查询最新价
  twap        执行 TWAP 拆单
  grid        运行网格策略
  events      查看事件日志

全局选项:
  -config  配置文件路径，默认使用 configs/config.yaml
  -symbol  覆盖配置中的交易对
  -dry-run 下单走内存撮合
`

func main() {
	var (
		configPath string
		symbol     string
		dryRun     bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&symbol, "symbol", "", "覆盖配置中的交易对")
	flag.BoolVar(&dryRun, "dry-run", false, "下单走内存撮合")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if symbol != "" {
		cfg.Exchange.Symbol = symbol
	}
	if dryRun {
		cfg.Execution.DryRun = true
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	bot, err := app.New(cfg, logger, sqliteStore)
	if err != nil {
		logger.Error("初始化应用失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, bot, args[0], args[1:]); err != nil {
		logger.Error("命令执行失败", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, bot *app.App, command string, args []string) error {
	switch command {
	case "market":
		fs := flag.NewFlagSet("market", flag.ExitOnError)
		side := fs.String("side", "", "买卖方向 (buy/sell)")
		amount := fs.Float64("amount", 0, "下单数量")
		if err := fs.Parse(args); err != nil {
			return err
		}
		s, err := parseSide(*side)
		if err != nil {
			return err
		}
		return bot.PlaceMarket(ctx, s, *amount)

	case "limit":
		fs := flag.NewFlagSet("limit", flag.ExitOnError)
		side := fs.String("side", "", "买卖方向 (buy/sell)")
		amount := fs.Float64("amount", 0, "下单数量")
		price := fs.Float64("price", 0, "限价")
		if err := fs.Parse(args); err != nil {
			return err
		}
		s, err := parseSide(*side)
		if err != nil {
			return err
		}
		return bot.PlaceLimit(ctx, s, *amount, *price)

	case "stop-limit":
		fs := flag.NewFlagSet("stop-limit", flag.ExitOnError)
		side := fs.String("side", "", "买卖方向 (buy/sell)")
		amount := fs.Float64("amount", 0, "下单数量")
		stop := fs.Float64("stop", 0, "触发价")
		price := fs.Float64("price", 0, "触发后的限价")
		if err := fs.Parse(args); err != nil {
			return err
		}
		s, err := parseSide(*side)
		if err != nil {
			return err
		}
		return bot.PlaceStopLimit(ctx, s, *amount, *stop, *price)

	case "oco":
		fs := flag.NewFlagSet("oco", flag.ExitOnError)
		side := fs.String("side", "", "买卖方向 (buy/sell)")
		amount := fs.Float64("amount", 0, "下单数量")
		takeProfit := fs.Float64("take-profit", 0, "止盈限价")
		stop := fs.Float64("stop", 0, "止损触发价")
		stopLimit := fs.Float64("stop-limit", 0, "止损触发后的限价")
		if err := fs.Parse(args); err != nil {
			return err
		}
		s, err := parseSide(*side)
		if err != nil {
			return err
		}
		return bot.PlaceOCO(ctx, s, *amount, *takeProfit, *stop, *stopLimit)

	case "cancel":
		fs := flag.NewFlagSet("cancel", flag.ExitOnError)
		orderID := fs.String("id", "", "订单ID")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *orderID == "" {
			return fmt.Errorf("必须提供 -id")
		}
		return bot.Cancel(ctx, *orderID)

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		orderID := fs.String("id", "", "订单ID")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *orderID == "" {
			return fmt.Errorf("必须提供 -id")
		}
		return bot.Status(ctx, *orderID)

	case "open":
		return bot.OpenOrders(ctx)

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		limit := fs.Int64("limit", 50, "返回条数")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return bot.History(ctx, *limit)

	case "balance":
		return bot.Balance(ctx)

	case "price":
		return bot.Price(ctx)

	case "twap":
		fs := flag.NewFlagSet("twap", flag.ExitOnError)
		side := fs.String("side", "", "买卖方向 (buy/sell)")
		amount := fs.Float64("amount", 0, "总下单数量")
		duration := fs.Duration("duration", 10*time.Minute, "执行总时长")
		intervals := fs.Int("intervals", 0, "拆分区间数，0 使用配置默认值")
		if err := fs.Parse(args); err != nil {
			return err
		}
		s, err := parseSide(*side)
		if err != nil {
			return err
		}
		return bot.RunTWAP(ctx, s, *amount, *duration, *intervals)

	case "grid":
		fs := flag.NewFlagSet("grid", flag.ExitOnError)
		center := fs.Float64("center", 0, "中心价，0 取最新价")
		spacing := fs.Float64("spacing", 0, "档位间距百分比，0 按ATR推导")
		rungs := fs.Int("rungs", 3, "单侧档位数")
		amount := fs.Float64("amount", 0, "每档下单数量")
		if err := fs.Parse(args); err != nil {
			return err
		}
		params, err := bot.GridParams(ctx, *center, *spacing, *rungs, *amount)
		if err != nil {
			return err
		}
		return bot.RunGrid(ctx, params)

	case "events":
		fs := flag.NewFlagSet("events", flag.ExitOnError)
		typ := fs.String("type", "", "事件类型过滤")
		limit := fs.Int("limit", 50, "返回条数")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return bot.Events(ctx, strings.ToLower(strings.TrimSpace(*typ)), *limit)

	default:
		flag.Usage()
		return fmt.Errorf("未知命令: %s", command)
	}
}

func parseSide(raw string) (exchange.Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return exchange.SideBuy, nil
	case "sell":
		return exchange.SideSell, nil
	default:
		return "", fmt.Errorf("非法方向 %q, 只接受 buy/sell", raw)
	}
}
