package market

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"futures-bot/internal/exchange"
)

type marketClient interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]exchange.Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Snapshot 聚合一次行情采集的结果。
type Snapshot struct {
	Symbol      string
	Timeframe   string
	Candles     []exchange.Candle
	LastPrice   float64
	RetrievedAt time.Time
}

// Service 并发拉取K线与最新价。
type Service struct {
	client marketClient
	logger *zap.Logger
}

// NewService 创建行情服务。
func NewService(client marketClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		logger: logger,
	}
}

// GetSnapshot 拉取指定周期的K线及最新成交价。
func (s *Service) GetSnapshot(ctx context.Context, symbol, timeframe string, limit int64) (Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		candles []exchange.Candle
		price   float64
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, symbol, timeframe, limit)
		if err != nil {
			return err
		}
		candles = data
		return nil
	})

	group.Go(func() error {
		last, err := s.client.LastPrice(groupCtx, symbol)
		if err != nil {
			return err
		}
		price = last
		return nil
	})

	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Symbol:      symbol,
		Timeframe:   timeframe,
		Candles:     candles,
		LastPrice:   price,
		RetrievedAt: time.Now().UTC(),
	}

	s.logger.Debug("行情快照获取完成",
		zap.String("symbol", snapshot.Symbol),
		zap.String("timeframe", snapshot.Timeframe),
		zap.Int("candle_count", len(snapshot.Candles)),
		zap.Float64("last_price", snapshot.LastPrice),
	)

	return snapshot, nil
}
