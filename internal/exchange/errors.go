package exchange

import (
	"errors"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，需要上层跳过本次操作。
	ErrMaintenance = errors.New("exchange on maintenance")
)

// GatewayError 统一封装网关调用失败。策略层不区分具体原因，
// 仅记录 Code 与 Message 后跳过当前单元。
type GatewayError struct {
	Op      string // 失败的网关操作，如 place_market_order
	Code    string // 机器可读的错误分类
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s: [%s] %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// AsGatewayError 提取错误链中的 GatewayError。
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}

// wrapGatewayError 将底层错误归一化为 GatewayError。
func wrapGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		return &GatewayError{
			Op:      op,
			Code:    fmt.Sprint(ccxtErr.Type),
			Message: ccxtErr.Message,
			Err:     err,
		}
	}

	return &GatewayError{
		Op:      op,
		Message: err.Error(),
		Err:     err,
	}
}

// IsRetryable 判断错误是否可重试。仅用于幂等的读操作与撤单，
// 下单请求永远不重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
