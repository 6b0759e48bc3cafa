package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	launcher "github.com/IntersectMBO/cardano-launcher"
	"github.com/IntersectMBO/cardano-launcher/service"
)

// envPrefix maps flags to environment variables, e.g. --state-dir becomes
// CARDANO_LAUNCHER_STATE_DIR.
const envPrefix = "CARDANO_LAUNCHER"

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "cardano-launcher",
		Short: "Start and supervise a cardano-node and cardano-wallet pair",
		Long: `cardano-launcher starts cardano-node and cardano-wallet against a shared
state directory, waits for the wallet REST API to accept connections, and
prints the API endpoint as JSON. The pair is supervised as one unit: when
either process exits, the other is shut down and cardano-launcher exits
with the pair's combined exit code.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := viper.New()
			v.SetEnvPrefix(envPrefix)
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config file: %w", err)
				}
			}
			return run(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "launcher config file (yaml/toml/json)")
	flags.String("state-dir", "", "directory for databases, sockets, logs and the lock file")
	flags.Bool("mainnet", false, "run against mainnet")
	flags.String("node-config", "", "cardano-node configuration file")
	flags.String("node-topology", "", "cardano-node topology file")
	flags.String("byron-genesis", "", "Byron genesis file (testnets)")
	flags.String("node-binary", "", "cardano-node executable override")
	flags.String("wallet-binary", "", "cardano-wallet executable override")
	flags.String("node-socket", "", "fixed node-to-client socket path")
	flags.Int("node-port", 0, "cardano-node listen port (0 = node's choice)")
	flags.String("listen-address", "", "wallet API bind address (default 127.0.0.1)")
	flags.Int("api-port", 0, "wallet API port (0 = allocate a free port)")
	flags.Duration("ready-timeout", launcher.DefaultReadyTimeout, "how long to wait for the wallet API")
	flags.Duration("stop-timeout", service.DefaultStopTimeout, "cooperative shutdown grace before SIGKILL")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("log-file", "", "write launcher logs to this file with rotation instead of stderr")
	flags.Int("log-max-size", 64, "max size in MB of the log file before rotation")
	flags.Int("log-max-backups", 3, "rotated log files to keep")

	return cmd
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	log, err := newLogger(v)
	if err != nil {
		return err
	}
	launcher.SetLogger(log)

	l, err := launcher.New(launcher.Config{
		StateDir:         v.GetString("state-dir"),
		Mainnet:          v.GetBool("mainnet"),
		NodeConfigPath:   v.GetString("node-config"),
		NodeTopologyPath: v.GetString("node-topology"),
		ByronGenesisPath: v.GetString("byron-genesis"),
		NodeBinary:       v.GetString("node-binary"),
		WalletBinary:     v.GetString("wallet-binary"),
		NodeSocketPath:   v.GetString("node-socket"),
		NodePort:         v.GetInt("node-port"),
		ListenAddress:    v.GetString("listen-address"),
		APIPort:          v.GetInt("api-port"),
		ReadyTimeout:     v.GetDuration("ready-timeout"),
		Logger:           log,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	conn, err := l.Start(ctx)
	if err != nil {
		var exited *launcher.BackendExitedError
		if errors.As(err, &exited) {
			log.Error("backends exited during startup", "error", err)
			os.Exit(exited.Status.CombinedExitCode())
		}
		return err
	}

	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(conn); err != nil {
		return fmt.Errorf("write connection info: %w", err)
	}

	st, err := l.WaitExit(ctx)
	if err != nil {
		// Context canceled: bring the pair down before leaving. The
		// teardown gets its own context; ctx is already dead.
		st, _ = l.Stop(context.Background(), v.GetDuration("stop-timeout"))
	}
	os.Exit(st.CombinedExitCode())
	return nil
}

// newLogger builds the slog sink from the logging flags. With --log-file the
// records go through lumberjack for rotation, otherwise to stderr.
func newLogger(v *viper.Viper) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", v.GetString("log-level"), err)
	}

	var sink io.Writer = os.Stderr
	if file := v.GetString("log-file"); file != "" {
		sink = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    v.GetInt("log-max-size"),
			MaxBackups: v.GetInt("log-max-backups"),
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format := v.GetString("log-format"); format {
	case "json":
		return slog.New(slog.NewJSONHandler(sink, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(sink, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: want text or json", format)
	}
}
