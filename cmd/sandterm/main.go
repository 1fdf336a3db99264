// Command sandterm is the sandbox terminal client: it keeps the sandbox
// healthy, maintains one terminal session over SSE or websocket, and
// renders it in a Bubble Tea panel.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inkpad-ai/sandbox-client/internal/api"
	"github.com/inkpad-ai/sandbox-client/internal/config"
	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/session"
	"github.com/inkpad-ai/sandbox-client/internal/transport"
	"github.com/inkpad-ai/sandbox-client/internal/tui"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "sandterm",
		Short: "Terminal client for a remote sandbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the config file")

	root.AddCommand(healthCmd(&configPath))
	root.AddCommand(healCmd(&configPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sandterm.yaml"
	}
	return home + "/.config/sandterm/config.yaml"
}

func buildStack(configPath string) (*config.Config, *api.Client, *health.Orchestrator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	apiClient := api.New(cfg.BaseURL, cfg.AuthToken, api.WithTimeout(cfg.RequestTimeout))
	orch := health.New(apiClient)
	return cfg, apiClient, orch, nil
}

func runPanel(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// The UI owns the screen; logs go to a file next to the config, or
	// are discarded if that fails.
	if f, err := os.OpenFile(configPath+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	apiClient := api.New(cfg.BaseURL, cfg.AuthToken, api.WithTimeout(cfg.RequestTimeout))

	var ctrl *session.Controller
	orch := health.New(apiClient, health.WithNotify(func(text string) {
		if ctrl != nil {
			ctrl.Notify(text)
		}
	}))

	var dialer transport.Dialer
	switch cfg.Transport {
	case config.TransportWebSocket:
		dialer = transport.NewWSDialer(apiClient)
	default:
		dialer = transport.NewSSEDialer(apiClient)
	}

	ctrl = session.New(apiClient, orch, dialer)
	defer ctrl.Shutdown()

	// Token rotation lands without a restart.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		apiClient.SetToken(next.AuthToken)
	})
	if err == nil {
		defer watcher.Close()
	} else {
		log.Printf("[sandterm] config watch disabled: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go orch.Run(ctx)
	go ctrl.Run(ctx)
	ctrl.Open(ctx)

	return tui.Run(ctrl, orch)
}

func healthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the sandbox once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, apiClient, _, err := buildStack(*configPath)
			if err != nil {
				return err
			}

			result, err := apiClient.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health probe: %w", err)
			}
			if result.Healthy {
				fmt.Printf("healthy (sandbox %s)\n", result.SandboxID)
			} else {
				fmt.Println("unhealthy")
			}
			return nil
		},
	}
}

func healCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "heal",
		Short: "Force a health check and recreate the sandbox if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, orch, err := buildStack(*configPath)
			if err != nil {
				return err
			}

			if orch.AutoHeal(cmd.Context(), "cli heal", true) {
				fmt.Printf("sandbox healthy: %s\n", orch.SandboxID())
				return nil
			}
			return fmt.Errorf("sandbox could not be healed")
		},
	}
}
