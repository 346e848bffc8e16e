package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"ledremote/internal/agent"
	"ledremote/internal/config"
	"ledremote/internal/core"
	"ledremote/internal/logging"
	"ledremote/internal/udp"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var log = logging.For("main")

var rootCmd = &cobra.Command{
	Use:           "ledremote",
	Short:         "LED strip controller with button, UDP and WebSocket control",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAgent,
}

var sendCmd = &cobra.Command{
	Use:   "send <color>",
	Short: "Send a single UDP toggle datagram",
	Long:  `Sends the two-byte toggle datagram for red, green, blue or yellow to a running controller.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := core.ParseColor(args[0])
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, strconv.Itoa(udp.DefaultPort))
		}
		if err := udp.Send(addr, c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", c, addr)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ledremote %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "ledremote.toml", "Path to the TOML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides config and LOG_LEVEL)")
	rootCmd.Flags().Bool("sim", false, "Use simulated GPIO and strip drivers")

	sendCmd.Flags().StringP("addr", "a", "127.0.0.1", "Controller address, host or host:port")

	rootCmd.AddCommand(sendCmd, versionCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// flag, then LOG_LEVEL, then the config file
	logging.InitLogLevel(cfg.Log.Level)
	level, _ := cmd.Flags().GetString("log-level")
	logging.InitLogLevel(level)

	if sim, _ := cmd.Flags().GetBool("sim"); sim {
		cfg.Strip.Driver = "sim"
		cfg.GPIO.Backend = "sim"
	}

	log.WithField("version", version).WithField("commit", commit).WithField("built", date).Info("starting ledremote")

	a, err := agent.NewAgent(cfg)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run() }()

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err = <-runErr:
		if err != nil {
			log.WithError(err).Error("agent stopped")
		}
	}

	log.Info("shutting down agent")
	a.Shutdown()
	log.Info("agent shut down gracefully")
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("exiting")
		os.Exit(1)
	}
}
