// Package api 是 vaultgate 控制面的类型化客户端。
package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	sdkhttp "github.com/betbot/vaultgate/pkg/sdk/http"
)

// 服务端错误码映射出来的哨兵错误
var (
	ErrLocked       = errors.New("vaultgate: withdrawals locked")
	ErrFrozen       = errors.New("vaultgate: unlock time frozen")
	ErrForbidden    = errors.New("vaultgate: caller is not management")
	ErrNotShutdown  = errors.New("vaultgate: vault is not shut down")
	ErrShutdown     = errors.New("vaultgate: vault is shut down")
	ErrExceedsLimit = errors.New("vaultgate: withdraw exceeds limit")
	ErrUnauthorized = errors.New("vaultgate: invalid api token")
	ErrBadRequest   = errors.New("vaultgate: bad request")
	ErrBreakerOpen  = errors.New("vaultgate: venue circuit breaker open")
	ErrRateLimited  = errors.New("vaultgate: rate limited")
)

var codeErrors = map[string]error{
	"locked":        ErrLocked,
	"frozen":        ErrFrozen,
	"forbidden":     ErrForbidden,
	"not_shutdown":  ErrNotShutdown,
	"shutdown":      ErrShutdown,
	"exceeds_limit": ErrExceedsLimit,
	"unauthorized":  ErrUnauthorized,
	"bad_request":   ErrBadRequest,
	"breaker_open":  ErrBreakerOpen,
	"rate_limited":  ErrRateLimited,
}

// APIError 服务端返回的业务错误
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vaultgate api %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

type Client struct {
	http *sdkhttp.Client
}

// NewClient baseURL 形如 http://127.0.0.1:8080
func NewClient(baseURL, token string) *Client {
	return &Client{http: sdkhttp.NewClient(baseURL, sdkhttp.Options{
		Timeout:    15 * time.Second,
		RetryCount: 2,
		Token:      token,
	})}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var opt *sdkhttp.RequestOptions
	if body != nil {
		opt = &sdkhttp.RequestOptions{Data: body}
	}
	err := sdkhttp.CheckResponse(c.http.DoRequest(ctx, method, path, opt, out))
	var httpErr *sdkhttp.HTTPError
	if errors.As(err, &httpErr) {
		apiErr := &APIError{Status: httpErr.Status}
		if !httpErr.DecodeBody(apiErr) || apiErr.Code == "" {
			return httpErr
		}
		return apiErr
	}
	return err
}

// Status 当前快照
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WithdrawLimit 某账户当前可取出上限
func (c *Client) WithdrawLimit(ctx context.Context, account common.Address) (*big.Int, error) {
	var out struct {
		Limit *big.Int `json:"limit"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/withdraw-limit/"+account.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return out.Limit, nil
}

// Journal 最近的操作记录
func (c *Client) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	var out []JournalEntry
	path := fmt.Sprintf("/api/journal?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Report 触发一次估值汇报
func (c *Client) Report(ctx context.Context) (*Report, error) {
	var rep Report
	if err := c.do(ctx, http.MethodPost, "/api/report", nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Deposit from 为零地址时只记账
func (c *Client) Deposit(ctx context.Context, from common.Address, amount *big.Int) (*Status, error) {
	body := map[string]string{"amount": amount.String()}
	if from != (common.Address{}) {
		body["from"] = from.Hex()
	}
	var st Status
	if err := c.do(ctx, http.MethodPost, "/api/deposit", body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Withdraw 给 to 支付 amount
func (c *Client) Withdraw(ctx context.Context, to common.Address, amount *big.Int) (*WithdrawResult, error) {
	var res WithdrawResult
	body := map[string]string{"to": to.Hex(), "amount": amount.String()}
	if err := c.do(ctx, http.MethodPost, "/api/withdraw", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetUnlockTime 管理员修改解锁时间
func (c *Client) SetUnlockTime(ctx context.Context, caller common.Address, unlockTime uint64) (*Status, error) {
	var st Status
	body := map[string]any{"caller": caller.Hex(), "unlock_time": unlockTime}
	if err := c.do(ctx, http.MethodPost, "/api/unlock-time", body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// FreezeUnlock 管理员冻结解锁时间
func (c *Client) FreezeUnlock(ctx context.Context, caller common.Address) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodPost, "/api/freeze", map[string]string{"caller": caller.Hex()}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Shutdown 管理员关闭金库
func (c *Client) Shutdown(ctx context.Context, caller common.Address) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodPost, "/api/shutdown", map[string]string{"caller": caller.Hex()}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// EmergencyFree 管理员紧急取回，返回实际取回数量
func (c *Client) EmergencyFree(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	var out struct {
		Recovered *big.Int `json:"recovered"`
	}
	body := map[string]string{"caller": caller.Hex(), "amount": amount.String()}
	if err := c.do(ctx, http.MethodPost, "/api/emergency-free", body, &out); err != nil {
		return nil, err
	}
	return out.Recovered, nil
}

// Breaker 场所断路器状态
func (c *Client) Breaker(ctx context.Context) (*BreakerState, error) {
	var st BreakerState
	if err := c.do(ctx, http.MethodGet, "/api/breaker", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ResumeBreaker 管理员恢复断路器
func (c *Client) ResumeBreaker(ctx context.Context, caller common.Address) (*BreakerState, error) {
	var st BreakerState
	if err := c.do(ctx, http.MethodPost, "/api/breaker/resume", map[string]string{"caller": caller.Hex()}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Faucet 仅内存场所的服务端开放：给 to 铸造 amount
func (c *Client) Faucet(ctx context.Context, to common.Address, amount *big.Int) error {
	body := map[string]string{"to": to.Hex(), "amount": amount.String()}
	return c.do(ctx, http.MethodPost, "/api/faucet", body, nil)
}

// Healthz 健康检查
func (c *Client) Healthz(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
