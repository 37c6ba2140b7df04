package metrics

import "expvar"

var (
	// Ops 每种操作的调用次数（key 为操作名）
	Ops = expvar.NewMap("vaultgate_ops")
	// OpErrors 每种操作的失败次数
	OpErrors = expvar.NewMap("vaultgate_op_errors")

	LockedRejections = expvar.NewInt("vaultgate_locked_rejections")
	ThresholdFlips   = expvar.NewInt("vaultgate_threshold_flips")
	JournalWrites    = expvar.NewInt("vaultgate_journal_writes")
	JournalErrors    = expvar.NewInt("vaultgate_journal_errors")
	StatusBroadcasts = expvar.NewInt("vaultgate_status_broadcasts")

	// LastTotalAssets 最近一次估值（最小单位十进制字符串）
	LastTotalAssets = expvar.NewString("vaultgate_last_total_assets")
)

// Observe 记录一次操作结果
func Observe(op string, err error) {
	Ops.Add(op, 1)
	if err != nil {
		OpErrors.Add(op, 1)
	}
}
