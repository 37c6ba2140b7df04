package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/betbot/vaultgate/internal/host"
	"github.com/betbot/vaultgate/internal/risk"
	"github.com/betbot/vaultgate/internal/strategycore/adapter"
)

// 错误码，与 pkg/sdk/api 中的同名常量保持一致
const (
	CodeBadRequest    = "bad_request"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeLocked        = "locked"
	CodeFrozen        = "frozen"
	CodeNotShutdown   = "not_shutdown"
	CodeShutdown      = "shutdown"
	CodeExceedsLimit  = "exceeds_limit"
	CodeBreakerOpen   = "breaker_open"
	CodeRateLimited   = "rate_limited"
	CodeInternalError = "internal"
)

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, adapter.ErrLocked):
		return http.StatusLocked, CodeLocked
	case errors.Is(err, adapter.ErrFrozen):
		return http.StatusConflict, CodeFrozen
	case errors.Is(err, adapter.ErrNotShutdown):
		return http.StatusConflict, CodeNotShutdown
	case errors.Is(err, host.ErrShutdown):
		return http.StatusConflict, CodeShutdown
	case errors.Is(err, adapter.ErrUnauthorized), errors.Is(err, host.ErrUnauthorized):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, host.ErrExceedsLimit):
		return http.StatusUnprocessableEntity, CodeExceedsLimit
	case errors.Is(err, risk.ErrCircuitBreakerOpen):
		return http.StatusConflict, CodeBreakerOpen
	}
	return http.StatusInternalServerError, CodeInternalError
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("❌ [API] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: CodeBadRequest, Error: msg})
}
