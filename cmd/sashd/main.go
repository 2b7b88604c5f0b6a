// Package main is the CLI entry point for sashd: the daemon itself plus
// the client commands that talk to it over the unix socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/1broseidon/sashd/internal/config"
	"github.com/1broseidon/sashd/internal/daemon"
	"github.com/1broseidon/sashd/internal/dispatch"
	"github.com/1broseidon/sashd/internal/event"
	"github.com/1broseidon/sashd/internal/history"
	"github.com/1broseidon/sashd/internal/ipc"
	"github.com/1broseidon/sashd/internal/runtimepath"
	"github.com/1broseidon/sashd/internal/wm"
)

var (
	// Version info (set via ldflags)
	Version = "0.1.0"
	Commit  = "dev"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sashd",
	Short: "Window management daemon with app resolution, events and undo",
	Long: `sashd is a daemon that focuses, moves and resizes application windows
by name. Approximate names resolve to running applications, every action
is observable as an event stream, and actions can be undone and redone.`,
	Version: Version,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the daemon (foreground)",
	Long: `Starts the daemon in the foreground: connects to the X server, starts
the application watcher and listens for client commands on the unix
socket.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/sashd/config.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(focusCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(resizeCmd)
	rootCmd.AddCommand(maximizeCmd)
	rootCmd.AddCommand(moveDisplayCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(redoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting sashd",
		zap.String("version", Version),
		zap.String("commit", Commit))

	// The double-start guard runs before anything touches the socket, so
	// a second invocation can never disturb a running daemon.
	pidPath, err := writePIDFile()
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	backend, err := wm.NewX11()
	if err != nil {
		return fmt.Errorf("failed to initialize window backend: %w", err)
	}
	defer backend.Close()

	bus := event.NewBus(cfg.Events.QueueSize, cfg.Events.MaxConsecutiveDrops, logger.Named("bus"))

	historyPath, err := runtimepath.HistoryPath()
	if err != nil {
		return err
	}
	hist, err := history.New(history.Options{
		Path:       historyPath,
		Limit:      cfg.History.Limit,
		FlushDelay: time.Duration(cfg.History.FlushDelayMS) * time.Millisecond,
		Enabled:    cfg.HistoryEnabled(),
		Logger:     logger.Named("history"),
	})
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer hist.Close()

	watcher := daemon.NewWatcher(backend, bus,
		time.Duration(cfg.PollIntervalMS)*time.Millisecond,
		logger.Named("watcher"))

	dispatcher := dispatch.New(dispatch.Options{
		Controller:     backend,
		Lister:         watcher,
		History:        hist,
		Bus:            bus,
		FuzzyThreshold: cfg.FuzzyThreshold,
		Timeout:        time.Duration(cfg.ActionTimeoutMS) * time.Millisecond,
		Logger:         logger.Named("dispatch"),
	})

	// Populate the app snapshot before the server answers requests.
	watcher.Prime()

	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return err
	}
	server := ipc.NewServer(socketPath, dispatcher, hist, bus, watcher, logger.Named("ipc"))
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("shutting down", zap.String("signal", received.String()))

	return nil
}

// writePIDFile records the daemon PID, refusing to start when another
// live daemon instance holds the file.
func writePIDFile() (string, error) {
	pidPath, err := runtimepath.PIDFilePath()
	if err != nil {
		return "", err
	}

	if data, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(string(data)); err == nil {
			if proc, err := os.FindProcess(pid); err == nil && proc.Signal(syscall.Signal(0)) == nil {
				return "", fmt.Errorf("daemon already running (pid %d)", pid)
			}
		}
		// Stale PID file from an unclean shutdown.
		os.Remove(pidPath)
	}

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return "", fmt.Errorf("failed to write PID file: %w", err)
	}
	return pidPath, nil
}

func createLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
