package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/betbot/vaultgate/internal/domain"
	"github.com/betbot/vaultgate/pkg/logger"
	"github.com/betbot/vaultgate/pkg/sdk/api"
)

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")) // 绿色

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// model 是应用程序的状态
type model struct {
	client   *api.Client
	interval time.Duration
	decimals int32

	status    *api.Status
	journal   []api.JournalEntry
	err       error
	updatedAt time.Time
	width     int
}

type snapshotMsg struct {
	status  *api.Status
	journal []api.JournalEntry
	err     error
}

type tickMsg time.Time

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.client), tickCmd(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, fetchCmd(m.client)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(fetchCmd(m.client), tickCmd(m.interval))
	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.journal = msg.journal
			m.updatedAt = time.Now()
		}
	}
	return m, nil
}

func (m model) amt(x *big.Int) string {
	if x == nil {
		return "-"
	}
	if m.decimals <= 0 {
		return x.String()
	}
	return domain.FormatUnits(x, m.decimals)
}

func badge(on bool, yes, no string) string {
	if on {
		return warnStyle.Render(yes)
	}
	return okStyle.Render(no)
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("vaultgate dashboard"))
	b.WriteString("\n\n")

	if m.status == nil {
		if m.err != nil {
			return b.String() + fmt.Sprintf("错误: %v\n\n按 q 退出，r 重试", m.err)
		}
		return b.String() + "正在连接...\n\n按 q 退出"
	}
	st := m.status

	gate := strings.Join([]string{
		titleStyle.Render("Gates"),
		fmt.Sprintf("threshold      %s", m.amt(st.DeploymentThreshold)),
		fmt.Sprintf("threshold met  %s", badge(!st.ThresholdMet, "no", "yes")),
		fmt.Sprintf("unlock time    %d (%s)", st.UnlockTime, time.Unix(int64(st.UnlockTime), 0).Format("2006-01-02 15:04:05")),
		fmt.Sprintf("now            %d", st.Now),
		fmt.Sprintf("locked         %s", badge(st.Locked, "yes", "no")),
		fmt.Sprintf("frozen         %v", st.UnlockFrozen),
		fmt.Sprintf("shutdown       %s", badge(st.Shutdown, "yes", "no")),
	}, "\n")

	funds := strings.Join([]string{
		titleStyle.Render("Funds"),
		fmt.Sprintf("idle           %s", m.amt(st.Idle)),
		fmt.Sprintf("deployed       %s", m.amt(st.Deployed)),
		fmt.Sprintf("venue shares   %s", st.VenueShares),
		fmt.Sprintf("total          %s", m.amt(st.Total())),
		fmt.Sprintf("books idle     %s", m.amt(st.ReportedIdle)),
		fmt.Sprintf("books debt     %s", m.amt(st.ReportedDebt)),
		fmt.Sprintf("liquidity      %s", m.amt(st.VenueLiquidity)),
	}, "\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, borderStyle.Render(gate), "  ", borderStyle.Render(funds)))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Journal"))
	b.WriteString("\n")
	if len(m.journal) == 0 {
		b.WriteString(dimStyle.Render("  (empty)"))
		b.WriteString("\n")
	}
	for _, e := range m.journal {
		line := fmt.Sprintf("  %s  %-15s %-12s %s", e.CreatedAt.Local().Format("15:04:05"), e.Op, e.Amount, e.Result)
		if e.Error != "" {
			line = warnStyle.Render(fmt.Sprintf("  %s  %-15s %-12s %s", e.CreatedAt.Local().Format("15:04:05"), e.Op, e.Amount, e.Error))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	footer := fmt.Sprintf("updated %s · q 退出 · r 刷新", m.updatedAt.Format("15:04:05"))
	if m.err != nil {
		footer += " · " + warnStyle.Render(m.err.Error())
	}
	b.WriteString(dimStyle.Render(footer))
	return b.String()
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchCmd(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := c.Status(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		// 日志库可能未启用，失败时只显示状态
		entries, _ := c.Journal(ctx, 8)
		return snapshotMsg{status: st, journal: entries}
	}
}

func main() {
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		serverURL = flag.String("server", getenv("VAULTGATE_SERVER", "http://127.0.0.1:8080"), "control plane base url")
		token     = flag.String("token", getenv("VAULTGATE_API_TOKEN", ""), "api bearer token")
		interval  = flag.Duration("interval", 2*time.Second, "poll interval")
		decimals  = flag.Int("decimals", 6, "asset decimals for display (0 prints base units)")
	)
	flag.Parse()

	// 日志只写文件，避免干扰 TUI
	if err := logger.Init(logger.Config{
		Level:      "info",
		OutputFile: "logs/vault-tui.log",
		MaxSize:    10,
		MaxBackups: 2,
		Quiet:      true,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
	}

	m := model{
		client:   api.NewClient(*serverURL, *token),
		interval: *interval,
		decimals: int32(*decimals),
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "运行程序失败:", err)
		os.Exit(1)
	}
}
