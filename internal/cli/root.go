package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/logutil"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rapport",
	Short: "Affinity scoring for community relationships",
	Long: "Rapport scores how strongly members of a community are connected, from reactions,\n" +
		"mentions, replies and time spent together in voice channels.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Assigned here rather than in the literal: loadConfig reads rootCmd,
	// which would otherwise be an initialization cycle.
	rootCmd.PersistentPreRunE = loadConfig

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (YAML)")
	pf.String("db", "", "SQLite database path (default ~/.rapport/rapport.db)")
	pf.String("driver", "", "storage driver: sqlite or dynamodb")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("server-url", "", "rapport server URL for hook clients")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(affinityCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves defaults, the config file (--config or
// ~/.rapport/config.yaml), RAPPORT_* variables and flags, then builds the
// logger every command shares.
func loadConfig(cmd *cobra.Command, args []string) error {
	v := viper.New()
	pf := rootCmd.PersistentFlags()
	for key, flag := range map[string]string{
		"database.path":   "db",
		"database.driver": "driver",
		"logging.level":   "log-level",
		"server.url":      "server-url",
	} {
		if f := pf.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	path := cfgFile
	if path == "" {
		if def, err := defaultConfigPath(); err == nil {
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}
	}

	loaded, err := config.Load(v, path)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = logutil.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging)
	return err
}
