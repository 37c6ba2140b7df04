package api

import (
	"math/big"
	"time"
)

// Status 控制面 /api/status 的响应
type Status struct {
	DeploymentThreshold *big.Int `json:"deployment_threshold"`
	ThresholdMet        bool     `json:"threshold_met"`
	UnlockTime          uint64   `json:"unlock_time"`
	UnlockFrozen        bool     `json:"unlock_frozen"`

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
	total := new(big.Int)
	if s.Idle != nil {
		total.Add(total, s.Idle)
	}
	if s.Deployed != nil {
		total.Add(total, s.Deployed)
	}
	return total
}

type Report struct {
	TotalAssets *big.Int  `json:"total_assets"`
	Profit      *big.Int  `json:"profit"`
	Loss        *big.Int  `json:"loss"`
	Timestamp   time.Time `json:"timestamp"`
}

type WithdrawResult struct {
	Requested *big.Int `json:"requested"`
	Paid      *big.Int `json:"paid"`
	Loss      *big.Int `json:"loss"`
}

type JournalEntry struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Caller    string    `json:"caller,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type BreakerState struct {
	Halted            bool     `json:"halted"`
	ConsecutiveErrors int64    `json:"consecutive_errors"`
	RealizedLoss      *big.Int `json:"realized_loss"`
	LossLimit         *big.Int `json:"loss_limit,omitempty"`
}
