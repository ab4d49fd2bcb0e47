// Command titanctl is the operator/admin CLI for the scrape orchestrator:
// `serve` runs the HTTP API, `worker` runs the fetch-job worker pool, and
// `captcha`/`tickets` give an operator direct visibility into CAPTCHA
// tasks and cached Golden Tickets without going through the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/config"
	"github.com/titanscrape/titan/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "titanctl",
		Short: "Operate the scrape orchestrator: serve, worker, captcha, tickets",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(newServeCmd(), newWorkerCmd(), newCaptchaCmd(), newTicketsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = logging.Sync()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logging.ErrorLog(logging.HTTPAPI, "failed to load configuration", zap.String("path", configPath), zap.Error(err))
		return nil, fmt.Errorf("titanctl: load config %s: %w", configPath, err)
	}
	return cfg, nil
}

// withApp wires a full app for a one-shot CLI subcommand and closes it
// when fn returns, so `captcha`/`tickets` subcommands don't each repeat
// the connect/close boilerplate serve.go and worker.go already need.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
