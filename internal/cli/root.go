// Package cli wires the ehr-console commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/your-username/ehr-console/internal/auth"
	"github.com/your-username/ehr-console/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ehr-console",
	Short: "Live log stream console for the EHR integration platform",
	Long: `ehr-console follows the platform's live log stream in the terminal.
It keeps the most recent entries in memory, filters them by level and free
text, and reconnects on its own when the stream drops or the access token
expires.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		setLogLevel(cfg.Log.Level)
		return nil
	},
}

// Execute runs the root command
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ehr-console.yaml)")
	config.SetDefaults(viper.GetViper())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".ehr-console")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Failed to read config file")
		}
	} else {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Loaded config file")
	}
}

func setLogLevel(level string) {
	if level == "" {
		return
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown LOG_LEVEL, keeping default")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

// logToFile sends the global logger to path so it never draws over the terminal UI
func logToFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	prev := log.Logger
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() {
		log.Logger = prev
		f.Close()
	}, nil
}

// newSession builds the token store shared by the stream and the REST client
func newSession() (*auth.Store, *auth.Backend) {
	backend := auth.NewBackend(cfg.API.URL, auth.NewFileStorage(cfg.RefreshFile()))
	store := auth.NewStore(auth.NewFileStorage(cfg.TokenFile()), backend)
	return store, backend
}
