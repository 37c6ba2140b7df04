package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type Client struct {
	client *resty.Client
}

type Options struct {
	Timeout    time.Duration
	RetryCount int
	// Token 非空时每个请求带 Authorization: Bearer
	Token string
}

func NewClient(host string, opt Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opt.Timeout).
		SetRetryCount(opt.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// 只重试网络错误与 5xx；4xx 是业务错误（锁定 / 冻结 / 无权限），重试没有意义
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	if opt.Token != "" {
		client.SetAuthToken(opt.Token)
	}
	return &Client{client: client}
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
	Params  map[string]any
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "vaultgate-sdk")
	return r
}

// DoRequest 发送请求；out 非 nil 时在 2xx 响应上解码 JSON。
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParamsFromValues(toValues(opt.Params))
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	case http.MethodDelete:
		return rc.Delete(endpoint)
	case http.MethodPut:
		return rc.Put(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}

// HTTPError 非 2xx 响应
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

// CheckResponse 把传输错误与非 2xx 响应统一成 error
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	if resp.IsSuccess() {
		return nil
	}
	return &HTTPError{Status: resp.StatusCode(), Body: resp.Body()}
}

// DecodeBody 把错误响应体解成 JSON（解析失败返回 false）
func (e *HTTPError) DecodeBody(out any) bool {
	return json.Unmarshal(e.Body, out) == nil
}
