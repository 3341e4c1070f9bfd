// ABOUTME: Entry point for the llm-chat command line client
// ABOUTME: Wires config, logging, metrics and sessions behind a cobra command tree

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/llm-chat/internal/config"
	"github.com/2389/llm-chat/internal/events"
	"github.com/2389/llm-chat/internal/metrics"
	"github.com/2389/llm-chat/internal/session"
)

// Version is set by goreleaser at build time.
var version = "dev"

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "llm-chat",
	Short: "Chat with local and hosted language models",
	Long: `llm-chat keeps conversations with one or more language model endpoints.
Replies may carry reasoning between <think> tags, shown or hidden on demand.`,
	SilenceUsage: true,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file path (default is $XDG_CONFIG_HOME/llm-chat/config.yaml)")

	rootCmd.AddCommand(chatCmd, sendCmd, serveCmd, initCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the llm-chat version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "llm-chat %s\n", version)
	},
}

// getConfigPath returns the path to the config file.
// Priority: --config flag > LLM_CHAT_CONFIG env var > XDG_CONFIG_HOME/llm-chat/config.yaml > ~/.config/llm-chat/config.yaml
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if envPath := os.Getenv("LLM_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "llm-chat", "config.yaml")
}

// runtime is everything a command needs once config is loaded.
type runtime struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	recorder   *metrics.Recorder
	feed       *events.Broadcaster
	manager    *session.Manager
}

// loadRuntime reads .env and the config file, then builds every session.
func loadRuntime() (*runtime, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	recorder := metrics.New()
	feed := events.NewBroadcaster(logger)
	manager := session.NewManager(session.ManagerOptions{
		ReasoningVisible: !cfg.Reasoning.IsHidden(),
		Recorder:         recorder,
		Events:           feed,
		Logger:           logger,
	})
	if err := manager.Configure(cfg.Sessions); err != nil {
		manager.Close()
		feed.Close()
		return nil, fmt.Errorf("configuring sessions: %w", err)
	}

	return &runtime{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		recorder:   recorder,
		feed:       feed,
		manager:    manager,
	}, nil
}

// Close releases every session and ends open event streams.
func (rt *runtime) Close() {
	rt.manager.Close()
	rt.feed.Close()
}

// pickSession returns the named session, or the first configured one when
// name is empty.
func (rt *runtime) pickSession(name string) (*session.Session, error) {
	if name == "" {
		name = rt.cfg.Sessions[0].Name
	}
	return rt.manager.Get(name)
}
