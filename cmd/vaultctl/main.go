package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/pkg/sdk/api"
)

const usage = `vaultctl - vaultgate 控制面命令行

用法:
  vaultctl [全局参数] <命令> [参数]

命令:
  status                               当前状态
  limit <account>                      账户可取出上限
  report                               触发估值汇报
  deposit <amount> [from]              存入（from 为空时只记账）
  withdraw <to> <amount>               取出
  set-unlock <unix-seconds>            修改解锁时间（管理员）
  freeze                               冻结解锁时间（管理员）
  shutdown                             关闭金库（管理员）
  emergency-free <amount>              紧急取回（管理员，需先 shutdown）
  breaker                              场所断路器状态
  resume-breaker                       恢复断路器（管理员）
  faucet <to> <amount>                 内存场所铸币
  journal [limit]                      最近操作记录

全局参数:
`

func main() {
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	fs := flag.NewFlagSet("vaultctl", flag.ExitOnError)
	var (
		serverURL = fs.String("server", getenv("VAULTGATE_SERVER", "http://127.0.0.1:8080"), "control plane base url")
		token     = fs.String("token", getenv("VAULTGATE_API_TOKEN", ""), "api bearer token")
		caller    = fs.String("caller", getenv("VAULTGATE_MANAGEMENT", ""), "management address for admin commands")
		decimals  = fs.Int("decimals", 0, "asset decimals; amounts are parsed and printed in whole units when > 0")
		asJSON    = fs.Bool("json", false, "print raw json")
		timeout   = fs.Duration("timeout", 20*time.Second, "request timeout")
	)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	c := &cli{
		client:   api.NewClient(*serverURL, *token),
		caller:   *caller,
		decimals: int32(*decimals),
		json:     *asJSON,
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := c.run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

type cli struct {
	client   *api.Client
	caller   string
	decimals int32
	json     bool
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		st, err := c.client.Status(ctx)
		if err != nil {
			return err
		}
		return c.printStatus(st)

	case "limit":
		account, err := argAddress(args, 0, "account")
		if err != nil {
			return err
		}
		limit, err := c.client.WithdrawLimit(ctx, account)
		if err != nil {
			return err
		}
		return c.print(map[string]any{"account": account.Hex(), "limit": limit}, func() {
			fmt.Printf("withdraw limit for %s: %s\n", account.Hex(), c.amt(limit))
		})

	case "report":
		rep, err := c.client.Report(ctx)
		if err != nil {
			return err
		}
		return c.print(rep, func() {
			fmt.Printf("total=%s profit=%s loss=%s\n", c.amt(rep.TotalAssets), c.amt(rep.Profit), c.amt(rep.Loss))
		})

	case "deposit":
		amount, err := c.argAmount(args, 0)
		if err != nil {
			return err
		}
		var from common.Address
		if len(args) > 1 {
			if from, err = argAddress(args, 1, "from"); err != nil {
				return err
			}
		}
		st, err := c.client.Deposit(ctx, from, amount)
		if err != nil {
			return err
		}
		return c.printStatus(st)

	case "withdraw":
		to, err := argAddress(args, 0, "to")
		if err != nil {
			return err
		}
		amount, err := c.argAmount(args, 1)
		if err != nil {
			return err
		}
		res, err := c.client.Withdraw(ctx, to, amount)
		if err != nil {
			return err
		}
		return c.print(res, func() {
			fmt.Printf("requested=%s paid=%s loss=%s\n", c.amt(res.Requested), c.amt(res.Paid), c.amt(res.Loss))
		})

	case "set-unlock":
		if len(args) < 1 {
			return fmt.Errorf("missing unlock time")
		}
		t, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unlock time %q: %w", args[0], err)
		}
		caller, err := c.managementCaller()
		if err != nil {
			return err
		}
		st, err := c.client.SetUnlockTime(ctx, caller, t)
		if err != nil {
			return err
		}
		return c.printStatus(st)

	case "freeze":
		caller, err := c.managementCaller()
		if err != nil {
			return err
		}
		st, err := c.client.FreezeUnlock(ctx, caller)
		if err != nil {
			return err
		}
		return c.printStatus(st)

	case "shutdown":
		caller, err := c.managementCaller()
		if err != nil {
			return err
		}
		st, err := c.client.Shutdown(ctx, caller)
		if err != nil {
			return err
		}
		return c.printStatus(st)

	case "emergency-free":
		amount, err := c.argAmount(args, 0)
		if err != nil {
			return err
		}
		caller, err := c.managementCaller()
		if err != nil {
			return err
		}
		recovered, err := c.client.EmergencyFree(ctx, caller, amount)
		if err != nil {
			return err
		}
		return c.print(map[string]any{"recovered": recovered}, func() {
			fmt.Printf("recovered %s\n", c.amt(recovered))
		})

	case "breaker", "resume-breaker":
		var (
			st  *api.BreakerState
			err error
		)
		if cmd == "breaker" {
			st, err = c.client.Breaker(ctx)
		} else {
			caller, cerr := c.managementCaller()
			if cerr != nil {
				return cerr
			}
			st, err = c.client.ResumeBreaker(ctx, caller)
		}
		if err != nil {
			return err
		}
		return c.print(st, func() {
			fmt.Printf("halted=%v consecutive_errors=%d realized_loss=%s loss_limit=%s\n",
				st.Halted, st.ConsecutiveErrors, c.amt(st.RealizedLoss), c.amt(st.LossLimit))
		})

	case "faucet":
		to, err := argAddress(args, 0, "to")
		if err != nil {
			return err
		}
		amount, err := c.argAmount(args, 1)
		if err != nil {
			return err
		}
		if err := c.client.Faucet(ctx, to, amount); err != nil {
			return err
		}
		fmt.Printf("minted %s to %s\n", c.amt(amount), to.Hex())
		return nil

	case "journal":
		limit := 20
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit %q", args[0])
			}
			limit = n
		}
		entries, err := c.client.Journal(ctx, limit)
		if err != nil {
			return err
		}
		return c.print(entries, func() {
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tOP\tCALLER\tAMOUNT\tRESULT\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format("01-02 15:04:05"), e.Op, short(e.Caller), e.Amount, e.Result, e.Error)
			}
			_ = w.Flush()
		})
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) print(v any, human func()) error {
	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}

func (c *cli) printStatus(st *api.Status) error {
	return c.print(st, func() {
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintf(w, "threshold\t%s\t(met=%v)\n", c.amt(st.DeploymentThreshold), st.ThresholdMet)
		fmt.Fprintf(w, "unlock time\t%d\t(frozen=%v locked=%v now=%d)\n", st.UnlockTime, st.UnlockFrozen, st.Locked, st.Now)
		fmt.Fprintf(w, "idle\t%s\t\n", c.amt(st.Idle))
		fmt.Fprintf(w, "deployed\t%s\t(shares=%s)\n", c.amt(st.Deployed), st.VenueShares)
		fmt.Fprintf(w, "total\t%s\t\n", c.amt(st.Total()))
		fmt.Fprintf(w, "books\tidle=%s debt=%s\t(shutdown=%v)\n", c.amt(st.ReportedIdle), c.amt(st.ReportedDebt), st.Shutdown)
		fmt.Fprintf(w, "venue liquidity\t%s\t\n", c.amt(st.VenueLiquidity))
		_ = w.Flush()
	})
}

func (c *cli) amt(x *big.Int) string {
	if x == nil {
		return "-"
	}
	if c.decimals <= 0 {
		return x.String()
	}
	return domain.FormatUnits(x, c.decimals)
}

func (c *cli) argAmount(args []string, i int) (*big.Int, error) {
	if len(args) <= i {
		return nil, fmt.Errorf("missing amount")
	}
	if c.decimals > 0 {
		return domain.ParseUnits(args[i], c.decimals)
	}
	return domain.ParseBaseUnits(args[i])
}

func (c *cli) managementCaller() (common.Address, error) {
	if !common.IsHexAddress(c.caller) {
		return common.Address{}, fmt.Errorf("-caller (or VAULTGATE_MANAGEMENT) must be a valid address")
	}
	return common.HexToAddress(c.caller), nil
}

func argAddress(args []string, i int, name string) (common.Address, error) {
	if len(args) <= i {
		return common.Address{}, fmt.Errorf("missing %s", name)
	}
	if !common.IsHexAddress(args[i]) {
		return common.Address{}, fmt.Errorf("%s is not a valid address: %q", name, args[i])
	}
	return common.HexToAddress(args[i]), nil
}

func short(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}
