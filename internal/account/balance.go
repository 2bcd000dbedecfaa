package account

import (
	"context"
	"fmt"
	"strconv"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

type balanceClient interface {
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
}

// Snapshot 描述账户权益及保证金占用。
type Snapshot struct {
	TotalEquity float64
	WalletUSDT  float64
	FreeUSDT    float64
	UsedUSDT    float64
	Unrealized  float64
	Timestamp   time.Time
}

// Manager 负责拉取账户资金状态。
type Manager struct {
	client balanceClient
	logger *zap.Logger
}

// NewManager 创建账户管理器。
func NewManager(client balanceClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client: client,
		logger: logger,
	}
}

// Fetch 获取账户余额快照，以 USDT 结算口径汇总。
func (m *Manager) Fetch(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	balances, err := m.client.FetchBalance()
	if err != nil {
		return Snapshot{}, fmt.Errorf("account: 获取账户余额失败: %w", err)
	}

	snapshot := Snapshot{Timestamp: time.Now().UTC()}

	if balances.Total != nil {
		if total, ok := balances.Total["USDT"]; ok && total != nil {
			snapshot.WalletUSDT = *total
		}
	}
	if balances.Free != nil {
		if free, ok := balances.Free["USDT"]; ok && free != nil {
			snapshot.FreeUSDT = *free
		}
	}
	if balances.Used != nil {
		if used, ok := balances.Used["USDT"]; ok && used != nil {
			snapshot.UsedUSDT = *used
		}
	}

	// 合约账户的权益与未实现盈亏只在原始响应里。
	if balances.Info != nil {
		if v := parseNumeric(balances.Info["totalMarginBalance"]); v > 0 {
			snapshot.TotalEquity = v
		}
		snapshot.Unrealized = parseNumeric(balances.Info["totalUnrealizedProfit"])
		if snapshot.WalletUSDT == 0 {
			snapshot.WalletUSDT = parseNumeric(balances.Info["totalWalletBalance"])
		}
	}
	if snapshot.TotalEquity == 0 {
		snapshot.TotalEquity = snapshot.WalletUSDT + snapshot.Unrealized
	}

	m.logger.Debug("账户余额快照",
		zap.Float64("total_equity", snapshot.TotalEquity),
		zap.Float64("wallet_usdt", snapshot.WalletUSDT),
		zap.Float64("free_usdt", snapshot.FreeUSDT),
		zap.Float64("unrealized", snapshot.Unrealized),
	)

	return snapshot, nil
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
