package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "VAULTGATE_"

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
	JSON       bool   `yaml:"json" json:"json"`
}

// PersistenceConfig adapter / 宿主状态的持久化后端
type PersistenceConfig struct {
	Backend       string `yaml:"backend" json:"backend"` // json | badger | memory
	Dir           string `yaml:"dir" json:"dir"`
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"` // badger 可选，16/24/32 字节
}

// VenueConfig 收益场所
type VenueConfig struct {
	Mode          string `yaml:"mode" json:"mode"` // memory | eth
	RPCURL        string `yaml:"rpc_url" json:"rpc_url"`
	ChainID       int64  `yaml:"chain_id" json:"chain_id"`
	Address       string `yaml:"address" json:"address"`
	Refresh       string `yaml:"refresh" json:"refresh"` // accrue | touch | none
	AssetDecimals int32  `yaml:"asset_decimals" json:"asset_decimals"`
	// LiquidityCap 仅 memory 模式：场所可兑付现金上限（最小单位），空表示不限制
	LiquidityCap string `yaml:"liquidity_cap" json:"liquidity_cap"`
}

// StrategyConfig adapter 参数
type StrategyConfig struct {
	ID      string `yaml:"id" json:"id"`
	Address string `yaml:"address" json:"address"` // eth 模式下由签名地址决定，可留空
	// DeploymentThreshold 最小单位的十进制整数字符串
	DeploymentThreshold string `yaml:"deployment_threshold" json:"deployment_threshold"`
	UnlockTime          uint64 `yaml:"unlock_time" json:"unlock_time"`
	Management          string `yaml:"management" json:"management"`
}

// WalletConfig eth 模式的签名密钥（三选一）
type WalletConfig struct {
	PrivateKey     string `yaml:"private_key" json:"private_key"`
	Mnemonic       string `yaml:"mnemonic" json:"mnemonic"`
	DerivationPath string `yaml:"derivation_path" json:"derivation_path"`
	// SecretStore 加密 badger 密钥库路径，存有 mnemonic 或 private_key
	SecretStore string `yaml:"secret_store" json:"secret_store"`
	SecretKey   string `yaml:"secret_key" json:"secret_key"` // 32 字节，base64 或 hex
}

// RiskConfig 场所断路器，0 / 空表示关闭对应限制
type RiskConfig struct {
	MaxConsecutiveErrors int64  `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
	LossLimit            string `yaml:"loss_limit" json:"loss_limit"` // 最小单位
}

// ServerConfig HTTP 控制面
type ServerConfig struct {
	Listen         string `yaml:"listen" json:"listen"`
	APIToken       string `yaml:"api_token" json:"api_token"`
	MetricsListen  string `yaml:"metrics_listen" json:"metrics_listen"`
	JournalDB      string `yaml:"journal_db" json:"journal_db"`
	StatusInterval int    `yaml:"status_interval" json:"status_interval"` // 秒，websocket 状态推送间隔
	// RateLimit 写接口每秒补充的令牌数，0 表示不限流
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
}

// Config 应用配置
type Config struct {
	Log         LogConfig         `yaml:"log" json:"log"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
	Venue       VenueConfig       `yaml:"venue" json:"venue"`
	Strategy    StrategyConfig    `yaml:"strategy" json:"strategy"`
	Wallet      WalletConfig      `yaml:"wallet" json:"wallet"`
	Risk        RiskConfig        `yaml:"risk" json:"risk"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// Default 默认配置：内存场所、JSON 文件持久化。
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			File:       "logs/vaultgate.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Persistence: PersistenceConfig{Backend: "json", Dir: "data/state"},
		Venue: VenueConfig{
			Mode:          "memory",
			Refresh:       "none",
			AssetDecimals: 6,
		},
		Strategy: StrategyConfig{
			ID:                  "default",
			Address:             "0x000000000000000000000000000000000000a11c",
			DeploymentThreshold: "0",
			Management:          "0x000000000000000000000000000000000000beef",
		},
		Wallet: WalletConfig{DerivationPath: "m/44'/60'/0'/0/0"},
		Server: ServerConfig{
			Listen:         ":8080",
			MetricsListen:  "",
			JournalDB:      "data/journal.db",
			StatusInterval: 5,
			RateLimit:      20,
			RateBurst:      40,
		},
	}
}

// Load 依次应用默认值、配置文件（可为空）、环境变量覆盖。
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量优先级最高
func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Log.JSON = parseBoolEnv("LOG_JSON", c.Log.JSON)

	c.Persistence.Backend = getEnv("PERSISTENCE_BACKEND", c.Persistence.Backend)
	c.Persistence.Dir = getEnv("PERSISTENCE_DIR", c.Persistence.Dir)
	c.Persistence.EncryptionKey = getEnv("BADGER_KEY", c.Persistence.EncryptionKey)

	c.Venue.Mode = getEnv("VENUE_MODE", c.Venue.Mode)
	c.Venue.RPCURL = getEnv("RPC_URL", c.Venue.RPCURL)
	c.Venue.ChainID = int64(parseIntEnv("CHAIN_ID", int(c.Venue.ChainID)))
	c.Venue.Address = getEnv("VENUE_ADDRESS", c.Venue.Address)
	c.Venue.Refresh = getEnv("REFRESH_MODE", c.Venue.Refresh)
	c.Venue.AssetDecimals = int32(parseIntEnv("ASSET_DECIMALS", int(c.Venue.AssetDecimals)))
	c.Venue.LiquidityCap = getEnv("LIQUIDITY_CAP", c.Venue.LiquidityCap)

	c.Strategy.ID = getEnv("STRATEGY_ID", c.Strategy.ID)
	c.Strategy.Address = getEnv("STRATEGY_ADDRESS", c.Strategy.Address)
	c.Strategy.DeploymentThreshold = getEnv("DEPLOYMENT_THRESHOLD", c.Strategy.DeploymentThreshold)
	c.Strategy.UnlockTime = parseUint64Env("UNLOCK_TIME", c.Strategy.UnlockTime)
	c.Strategy.Management = getEnv("MANAGEMENT", c.Strategy.Management)

	c.Wallet.PrivateKey = getEnv("PRIVATE_KEY", c.Wallet.PrivateKey)
	c.Wallet.Mnemonic = getEnv("MNEMONIC", c.Wallet.Mnemonic)
	c.Wallet.DerivationPath = getEnv("DERIVATION_PATH", c.Wallet.DerivationPath)
	c.Wallet.SecretStore = getEnv("SECRET_DB", c.Wallet.SecretStore)
	c.Wallet.SecretKey = getEnv("SECRET_KEY", c.Wallet.SecretKey)

	c.Risk.MaxConsecutiveErrors = int64(parseIntEnv("MAX_CONSECUTIVE_ERRORS", int(c.Risk.MaxConsecutiveErrors)))
	c.Risk.LossLimit = getEnv("LOSS_LIMIT", c.Risk.LossLimit)

	c.Server.Listen = getEnv("LISTEN", c.Server.Listen)
	c.Server.APIToken = getEnv("API_TOKEN", c.Server.APIToken)
	c.Server.MetricsListen = getEnv("METRICS_LISTEN", c.Server.MetricsListen)
	c.Server.JournalDB = getEnv("JOURNAL_DB", c.Server.JournalDB)
	c.Server.StatusInterval = parseIntEnv("STATUS_INTERVAL", c.Server.StatusInterval)
	c.Server.RateLimit = parseIntEnv("RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = parseIntEnv("RATE_BURST", c.Server.RateBurst)
}

// LossLimit 解析断路器亏损上限，未配置返回 nil
func (c *Config) LossLimit() (*big.Int, error) {
	if strings.TrimSpace(c.Risk.LossLimit) == "" {
		return nil, nil
	}
	return parseBaseUnits(c.Risk.LossLimit)
}

// Threshold 解析部署阈值
func (c *Config) Threshold() (*big.Int, error) {
	return parseBaseUnits(c.Strategy.DeploymentThreshold)
}

// ManagementAddress 管理角色地址
func (c *Config) ManagementAddress() common.Address {
	return common.HexToAddress(c.Strategy.Management)
}

// StrategyAddress memory 模式下 adapter 的地址
func (c *Config) StrategyAddress() common.Address {
	return common.HexToAddress(c.Strategy.Address)
}

// IsEth 是否使用链上场所
func (c *Config) IsEth() bool {
	return strings.EqualFold(c.Venue.Mode, "eth")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if _, err := c.Threshold(); err != nil {
		return fmt.Errorf("DEPLOYMENT_THRESHOLD 无效: %w", err)
	}
	if !common.IsHexAddress(c.Strategy.Management) {
		return fmt.Errorf("MANAGEMENT 不是有效地址: %q", c.Strategy.Management)
	}

	switch strings.ToLower(c.Persistence.Backend) {
	case "memory":
	case "json", "badger":
		if c.Persistence.Dir == "" {
			return fmt.Errorf("PERSISTENCE_DIR 未配置")
		}
	default:
		return fmt.Errorf("不支持的持久化后端: %s (json|badger|memory)", c.Persistence.Backend)
	}

	switch strings.ToLower(c.Venue.Refresh) {
	case "", "none", "accrue", "accrueinterest", "touch":
	default:
		return fmt.Errorf("REFRESH_MODE 无效: %s (accrue|touch|none)", c.Venue.Refresh)
	}
	if c.Venue.AssetDecimals < 0 || c.Venue.AssetDecimals > 36 {
		return fmt.Errorf("ASSET_DECIMALS 超出范围: %d", c.Venue.AssetDecimals)
	}

	switch strings.ToLower(c.Venue.Mode) {
	case "memory":
		if !common.IsHexAddress(c.Strategy.Address) {
			return fmt.Errorf("STRATEGY_ADDRESS 不是有效地址: %q", c.Strategy.Address)
		}
		if c.Venue.LiquidityCap != "" {
			if _, err := parseBaseUnits(c.Venue.LiquidityCap); err != nil {
				return fmt.Errorf("LIQUIDITY_CAP 无效: %w", err)
			}
		}
	case "eth":
		if c.Venue.RPCURL == "" {
			return fmt.Errorf("RPC_URL 未配置")
		}
		if c.Venue.ChainID <= 0 {
			return fmt.Errorf("CHAIN_ID 必须大于 0")
		}
		if !common.IsHexAddress(c.Venue.Address) {
			return fmt.Errorf("VENUE_ADDRESS 不是有效地址: %q", c.Venue.Address)
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.Mnemonic == "" && c.Wallet.SecretStore == "" {
			return fmt.Errorf("eth 模式需要 PRIVATE_KEY、MNEMONIC 或 SECRET_DB")
		}
	default:
		return fmt.Errorf("不支持的场所模式: %s (memory|eth)", c.Venue.Mode)
	}

	if _, err := c.LossLimit(); err != nil {
		return fmt.Errorf("LOSS_LIMIT 无效: %w", err)
	}
	if c.Risk.MaxConsecutiveErrors < 0 {
		return fmt.Errorf("MAX_CONSECUTIVE_ERRORS 不能为负数")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("RATE_LIMIT / RATE_BURST 不能为负数")
	}
	if c.Server.StatusInterval <= 0 {
		return fmt.Errorf("STATUS_INTERVAL 必须大于 0")
	}
	return nil
}

func parseBaseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("不是十进制整数: %q", s)
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("不能为负数: %s", s)
	}
	return x, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseUint64Env(key string, defaultValue uint64) uint64 {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
