package server

import (
	"crypto/subtle"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/internal/services"
	"github.com/betbot/vaultgate/pkg/ratelimit"
)

var log = logrus.WithField("module", "controlplane")

type Config struct {
	// APIToken 非空时 /api 与 /ws 需要 Bearer token
	APIToken string
	// PingInterval websocket 心跳间隔
	PingInterval time.Duration
	// Limits 非空时按 "api:write" 对写接口限流
	Limits *ratelimit.RateLimitManager
	// Faucet 非空时开放 POST /api/faucet（仅内存场所，用于演示与联调）
	Faucet Minter
}

// Minter 给地址凭空铸造资产的账本
type Minter interface {
	Mint(to common.Address, amount *big.Int)
}

type Server struct {
	cfg      Config
	svc      *services.VaultService
	upgrader websocket.Upgrader
}

func New(cfg Config, svc *services.VaultService) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Server{
		cfg: cfg,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api", s.auth())
	api.GET("/status", s.handleStatus)
	api.GET("/withdraw-limit/:account", s.handleWithdrawLimit)
	api.GET("/journal", s.handleJournal)
	api.GET("/breaker", s.handleBreaker)

	write := api.Group("", s.limit(WriteEndpoint))
	write.POST("/report", s.handleReport)
	write.POST("/deposit", s.handleDeposit)
	write.POST("/withdraw", s.handleWithdraw)
	write.POST("/unlock-time", s.handleSetUnlockTime)
	write.POST("/freeze", s.handleFreeze)
	write.POST("/shutdown", s.handleShutdown)
	write.POST("/emergency-free", s.handleEmergencyFree)
	write.POST("/breaker/resume", s.handleResumeBreaker)
	if s.cfg.Faucet != nil {
		write.POST("/faucet", s.handleFaucet)
	}

	r.GET("/ws/status", s.auth(), s.handleStatusStream)
	return r
}

// WriteEndpoint 写接口共用的限流键
const WriteEndpoint = "api:write"

func (s *Server) limit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Limits != nil && !s.cfg.Limits.Allow(endpoint) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Code: CodeRateLimited, Error: "too many requests"})
			return
		}
		c.Next()
	}
}

// auth Bearer token 校验；websocket 客户端也可以用 ?token= 传递
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIToken == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: CodeUnauthorized, Error: "missing or invalid api token"})
			return
		}
		c.Next()
	}
}
