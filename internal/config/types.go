package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了助手运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Execution ExecutionConfig `mapstructure:"execution"`
	TWAP      TWAPConfig      `mapstructure:"twap"`
	Grid      GridConfig      `mapstructure:"grid"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Symbol     string      `mapstructure:"symbol"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制读操作的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	TimeInForce string `mapstructure:"time_in_force"`
	DryRun      bool   `mapstructure:"dry_run"`
}

// TWAPConfig 为 TWAP 策略提供默认参数。
type TWAPConfig struct {
	Intervals int `mapstructure:"intervals"`
}

// GridConfig 为网格策略提供默认参数。
type GridConfig struct {
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	AutoTimeframe   string        `mapstructure:"auto_timeframe"`
	AutoCandles     int           `mapstructure:"auto_candles"`
}

// DatabaseConfig 管理事件库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// JournalConfig 控制事件回看服务。端口为 0 时不启动 HTTP 服务。
type JournalConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

var validTimeInForce = map[string]struct{}{
	"GTC": {},
	"IOC": {},
	"FOK": {},
}

// Validate 对配置进行基本校验，错误通过 multierr 聚合后一次性上报。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Symbol == "" {
		err = multierr.Append(err, errors.New("exchange.symbol 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if _, ok := validTimeInForce[strings.ToUpper(c.Execution.TimeInForce)]; !ok {
		err = multierr.Append(err, fmt.Errorf("execution.time_in_force 非法: %q", c.Execution.TimeInForce))
	}
	if c.TWAP.Intervals < 1 {
		err = multierr.Append(err, errors.New("twap.intervals 必须不小于1"))
	}
	if c.Grid.MonitorInterval <= 0 {
		err = multierr.Append(err, errors.New("grid.monitor_interval 必须大于0"))
	}
	if c.Grid.AutoTimeframe == "" {
		err = multierr.Append(err, errors.New("grid.auto_timeframe 不能为空"))
	}
	if c.Grid.AutoCandles < 15 {
		err = multierr.Append(err, errors.New("grid.auto_candles 不能小于15，否则无法计算ATR"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Journal.HTTPPort < 0 || c.Journal.HTTPPort > 65535 {
		err = multierr.Append(err, errors.New("journal.http_port 必须位于[0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
