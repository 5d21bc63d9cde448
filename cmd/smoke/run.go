package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/spf13/cobra"

	"github.com/pessu/auth0-smoke/internal/config"
	"github.com/pessu/auth0-smoke/pkg/smoke"
	"github.com/pessu/auth0-smoke/pkg/smoke/browser"
)

func newRunCmd() *cobra.Command {
	var screenshotDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the login-flow smoke test",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := runSmoke(ctx, cfg, logger, screenshotDir)
			printSummary(cmd.OutOrStdout(), res, err)
			return err
		},
	}
	cmd.Flags().StringVar(&screenshotDir, "screenshot-dir", "", "Save a screenshot here when the test fails")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(config.Options{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
}

func newLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// runSmoke launches Chrome, runs the scenario once and tears Chrome down.
func runSmoke(ctx context.Context, cfg *config.Config, logger *slog.Logger, screenshotDir string) (*smoke.Result, error) {
	flow, err := smoke.NewFlow(cfg.Flow(), smoke.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	logger.Debug("launching chrome", "project", cfg.ProjectID, "headless", cfg.Headless, "web_security", cfg.ChromeWebSecurity)
	client, err := browser.NewClient(cfg.Browser())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("browser close error", "error", err)
		}
	}()

	page, err := client.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	if screenshotDir != "" {
		flow.On(smoke.EventAfterRun, screenshotOnFailure(page, screenshotDir, logger))
	}

	return flow.Run(ctx, page)
}

// screenshotOnFailure saves the page as it looked when the run failed.
func screenshotOnFailure(page *browser.Page, dir string, logger *slog.Logger) smoke.Hook {
	return func(ctx context.Context, ev smoke.Event) {
		if ev.Err == nil {
			return
		}
		img, err := page.Rod().Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			logger.Warn("screenshot failed", "error", err)
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("screenshot failed", "error", err)
			return
		}
		path := filepath.Join(dir, fmt.Sprintf("smoke_%d.png", time.Now().Unix()))
		if err := os.WriteFile(path, img, 0o644); err != nil {
			logger.Warn("screenshot failed", "error", err)
			return
		}
		logger.Info("saved screenshot", "path", path)
	}
}

func printSummary(w io.Writer, res *smoke.Result, err error) {
	if err != nil {
		step := smoke.FailedStep(err)
		if step == "" {
			step = "setup"
		}
		fmt.Fprintf(w, "FAIL  login flow (%s)\n", step)
		return
	}
	branch := "no login wall"
	if res.LoginTaken {
		branch = "signed in via identity provider"
	}
	fmt.Fprintf(w, "PASS  login flow: %s as %s in %v\n", branch, res.Name, res.Duration.Round(time.Millisecond))
}
