package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/pkg/logger"
)

var log = logrus.WithField("module", "simulate")

func main() {
	var (
		only     = flag.String("only", "", "comma separated scenario names to run (default: all)")
		decimals = flag.Int("decimals", 6, "asset decimals used when printing amounts")
		level    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *level}); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}

	selected := map[string]bool{}
	for _, name := range strings.Split(*only, ",") {
		if name = strings.TrimSpace(name); name != "" {
			selected[name] = true
		}
	}

	ctx := context.Background()
	failed := 0
	for _, sc := range scenarios() {
		if len(selected) > 0 && !selected[sc.name] {
			continue
		}
		log.Infof("▶️ [Simulate] %s", sc.name)
		if err := sc.run(ctx, int32(*decimals)); err != nil {
			failed++
			log.Errorf("❌ [Simulate] %s: %v", sc.name, err)
			continue
		}
		log.Infof("✅ [Simulate] %s", sc.name)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
