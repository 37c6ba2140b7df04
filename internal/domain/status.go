package domain

import (
	"math/big"
	"time"
)

// AdapterState adapter 自身持有的全部状态（不含场所仓位，仓位永远从场所重新推导）。
type AdapterState struct {
	DeploymentThreshold *big.Int `json:"deployment_threshold"`
	ThresholdMet        bool     `json:"threshold_met"`
	UnlockTime          uint64   `json:"unlock_time"`
	UnlockFrozen        bool     `json:"unlock_frozen"`
}

// Clone 深拷贝
func (s AdapterState) Clone() AdapterState {
	s.DeploymentThreshold = CloneAmount(s.DeploymentThreshold)
	return s
}

// Status 对外展示的快照。
type Status struct {
	AdapterState

	Now            uint64   `json:"now"`
	Locked         bool     `json:"locked"`
	Idle           *big.Int `json:"idle"`
	VenueShares    *big.Int `json:"venue_shares"`
	Deployed       *big.Int `json:"deployed"`
	ReportedIdle   *big.Int `json:"reported_idle"`
	ReportedDebt   *big.Int `json:"reported_debt"`
	Shutdown       bool     `json:"shutdown"`
	VenueLiquidity *big.Int `json:"venue_liquidity"`
}

// Total idle + deployed
func (s *Status) Total() *big.Int {
	return new(big.Int).Add(CloneAmount(s.Idle), CloneAmount(s.Deployed))
}

// Report 一次汇报（harvest & report）的结果。
type Report struct {
	TotalAssets *big.Int  `json:"total_assets"`
	Profit      *big.Int  `json:"profit"`
	Loss        *big.Int  `json:"loss"`
	Timestamp   time.Time `json:"timestamp"`
}
