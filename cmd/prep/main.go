// Command prep runs the local-first lesson-plan sync engine and its
// supporting tooling.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "prep",
	Short: "Local-first sync engine for weekly lesson plans",
	Long: `prep keeps weekly lesson-plan records usable offline.

Records are addressed by (term, class, week-start). Every navigation and
save is served from a local SQLite cache first; the remote document store
is reconciled in the background and its failures degrade to advisories,
never to lost edits.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: prepsync.yaml in . or ~/.config/prepsync)")
	rootCmd.PersistentFlags().String("cache", "", "path to the local cache database")
	rootCmd.PersistentFlags().String("remote", "", "remote endpoint URL")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig wires viper: file, then PREPSYNC_* environment, then flags.
func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("prepsync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/prepsync")
		}
	}

	viper.SetDefault("cache_path", ".prepsync/cache.db")
	viper.SetDefault("listen_addr", "127.0.0.1:8787")
	viper.SetDefault("import_dir", ".prepsync/drop")
	viper.SetDefault("log_file", "")

	viper.SetEnvPrefix("PREPSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}

	if v, _ := rootCmd.PersistentFlags().GetString("cache"); v != "" {
		viper.Set("cache_path", v)
	}
	if v, _ := rootCmd.PersistentFlags().GetString("remote"); v != "" {
		viper.Set("remote_url", v)
	}
}

// newLogger builds a prefixed logger, optionally teeing into a rotated file.
func newLogger(prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if logFile := viper.GetString("log_file"); logFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		})
	}
	return log.New(out, prefix, log.LstdFlags)
}
