package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

var (
	cfg    *koanf.Koanf
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "visica",
	Short: "Visica is a passphrase-addressed account service",
	Long: `Visica keeps small accounts (a display name and a set of named secret
values) behind a single generated passphrase. The passphrase is the only
credential: whoever holds it can view, edit or delete the account.

Run "visica server" to host the record store and "visica account" to use it.
Complete documentation is available at https://github.com/jmcleod/visica`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		k, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		level, err := parseLevel(k.String("log-level"))
		if err != nil {
			return err
		}
		cfg = k
		logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file (env VISICA_CONFIG)")
	pf.String("data-dir", defaultDataDir(), "Directory for local state")
	pf.String("log-level", "warn", "Log level: debug, info, warn or error")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
