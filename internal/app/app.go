// Package app 按配置组装 adapter、宿主、场所与控制面服务。
package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/internal/host"
	"github.com/betbot/vaultgate/internal/ports"
	"github.com/betbot/vaultgate/internal/risk"
	"github.com/betbot/vaultgate/internal/services"
	"github.com/betbot/vaultgate/internal/strategycore/adapter"
	"github.com/betbot/vaultgate/internal/venue/ethvenue"
	"github.com/betbot/vaultgate/internal/venue/memvenue"
	"github.com/betbot/vaultgate/internal/wallet"
	"github.com/betbot/vaultgate/pkg/config"
	"github.com/betbot/vaultgate/pkg/persistence"
)

var log = logrus.WithField("module", "app")

// MemoryVenueAddress memory 模式下场所在账本中的地址
var MemoryVenueAddress = common.HexToAddress("0x0000000000000000000000000000000000004626")

// App 组装好的运行时
type App struct {
	Adapter *adapter.Adapter
	Host    *host.Host
	Service *services.VaultService
	Breaker *risk.CircuitBreaker

	// 仅 memory 模式
	Ledger   *memvenue.Ledger
	MemVenue *memvenue.Venue

	persistence persistence.Service
	journal     *services.Journal
	closers     []func() error
}

// Options 可覆盖的协作方（测试 / 模拟用）
type Options struct {
	Clock ports.Clock
	// SkipJournal 不打开 SQLite 日志库
	SkipJournal bool
}

// OpenPersistence 按配置打开持久化后端
func OpenPersistence(cfg config.PersistenceConfig) (persistence.Service, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return persistence.NewMemoryService(), nil
	case "badger":
		var key []byte
		if cfg.EncryptionKey != "" {
			key = []byte(cfg.EncryptionKey)
		}
		return persistence.OpenBadger(persistence.BadgerOptions{Path: cfg.Dir, EncryptionKey: key})
	case "json", "":
		return persistence.NewJSONFileService(cfg.Dir), nil
	}
	return nil, fmt.Errorf("unsupported persistence backend: %s", cfg.Backend)
}

func loadSigner(cfg config.WalletConfig) (*wallet.Signer, error) {
	if cfg.PrivateKey == "" && cfg.Mnemonic == "" && cfg.SecretStore != "" {
		return wallet.FromSecretStore(cfg.SecretStore, cfg.SecretKey, cfg.DerivationPath)
	}
	return wallet.Load(cfg.PrivateKey, cfg.Mnemonic, cfg.DerivationPath)
}

// Build 根据配置构建 App。调用方负责 Close。
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, err
	}
	lossLimit, err := cfg.LossLimit()
	if err != nil {
		return nil, err
	}

	a := &App{}
	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	a.persistence, err = OpenPersistence(cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}
	a.closers = append(a.closers, a.persistence.Close)

	var (
		venue    ports.Venue
		asset    ports.Asset
		ledger   host.Ledger
		clock    = opts.Clock
		strategy common.Address
	)

	if cfg.IsEth() {
		signer, err := loadSigner(cfg.Wallet)
		if err != nil {
			return nil, fmt.Errorf("load signer: %w", err)
		}
		client, err := ethvenue.Dial(ctx, cfg.Venue.RPCURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })

		mode, err := ethvenue.ParseRefreshMode(cfg.Venue.Refresh)
		if err != nil {
			return nil, err
		}
		tx := ethvenue.NewTransactor(client, signer.Key, big.NewInt(cfg.Venue.ChainID))
		ev, err := ethvenue.New(ctx, client, tx, ethvenue.Config{
			Venue:   common.HexToAddress(cfg.Venue.Address),
			Refresh: mode,
		})
		if err != nil {
			return nil, err
		}
		venue, asset, ledger = ev, ev.Asset(), ev.Asset()
		if clock == nil {
			clock = ethvenue.NewChainClock(client)
		}
		strategy = signer.Address
	} else {
		a.Ledger = memvenue.NewLedger()
		a.MemVenue = memvenue.New(MemoryVenueAddress, a.Ledger)
		if cfg.Venue.LiquidityCap != "" {
			if limit, parsed := new(big.Int).SetString(cfg.Venue.LiquidityCap, 10); parsed {
				a.MemVenue.SetLiquidityCap(limit)
			}
		}
		venue, asset, ledger = a.MemVenue, a.Ledger, a.Ledger
		strategy = cfg.StrategyAddress()
	}

	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		MaxConsecutiveErrors: cfg.Risk.MaxConsecutiveErrors,
		LossLimit:            lossLimit,
	})
	venue = risk.Guard(venue, breaker)

	a.Host, err = host.New(host.Config{
		ID:              cfg.Strategy.ID,
		Management:      cfg.ManagementAddress(),
		StrategyAddress: strategy,
	}, ledger, a.persistence)
	if err != nil {
		return nil, err
	}
	a.Adapter, err = adapter.New(adapter.Config{
		ID:                  cfg.Strategy.ID,
		Address:             strategy,
		DeploymentThreshold: threshold,
		UnlockTime:          cfg.Strategy.UnlockTime,
	}, adapter.Deps{
		Venue:       venue,
		Asset:       asset,
		Vault:       a.Host,
		Clock:       clock,
		Persistence: a.persistence,
	})
	if err != nil {
		return nil, err
	}
	a.Host.Attach(a.Adapter)

	if !opts.SkipJournal && cfg.Server.JournalDB != "" {
		a.journal, err = services.OpenJournal(cfg.Server.JournalDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.journal.Close)
	}
	a.Breaker = breaker
	a.Service = services.NewVaultService(a.Adapter, a.Host, a.journal).WithBreaker(breaker)

	log.Infof("✅ [App] 组装完成: mode=%s strategy=%s management=%s persistence=%s",
		cfg.Venue.Mode, strategy.Hex(), cfg.ManagementAddress().Hex(), cfg.Persistence.Backend)
	built = true
	return a, nil
}

// Close 逆序释放资源
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
