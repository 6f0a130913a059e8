package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cchalm/chatwidget/internal/config"
	"github.com/cchalm/chatwidget/internal/logging"
)

var (
	cfg    config.Config
	logCfg = logging.Config{Level: "disabled"}
	logger = zerolog.Nop()

	flags struct {
		configFile string
		logLevel   string
		provider   string
		model      string
		storage    string
		stateDir   string
	}
)

var rootCmd = &cobra.Command{
	Use:   "chatwidget",
	Short: "Terminal chat widget for Gemini and Claude",
	Long: `chatwidget is a conversational chat widget for the terminal. It keeps a
multi-turn conversation with a generative language model, accepts one image
or file attachment per message, and saves the rendered transcript between runs.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRootConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	// A missing .env is normal
	envErr := godotenv.Load()

	var err error
	cfg, err = config.Load(flags.configFile, flagOverrides(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg = logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.Output = cmd.ErrOrStderr()
	logger = logging.New(logCfg)
	if envErr != nil {
		logger.Debug().Msg("No .env file found, using environment variables")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// flagOverrides applies the flags the user set explicitly. They run inside config.Load so the provider's fallback
// API key is chosen for the final provider.
func flagOverrides(cmd *cobra.Command) config.Override {
	pf := cmd.Flags()
	return func(c *config.Config) {
		if pf.Changed("log-level") {
			c.Log.Level = flags.logLevel
		}
		if pf.Changed("provider") {
			c.Provider = flags.provider
		}
		if pf.Changed("model") {
			c.Model = flags.model
		}
		if pf.Changed("storage") {
			c.Storage = flags.storage
		}
		if pf.Changed("state-dir") {
			c.StateDir = flags.stateDir
		}
	}
}

// componentLogger returns a logger tagged with the component it serves
func componentLogger(component string) zerolog.Logger {
	return logging.NewWithComponent(logCfg, component)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to a YAML config file (default $"+config.EnvConfigPath+")")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
	pf.StringVar(&flags.provider, "provider", "", "Model provider (gemini, gemini-sdk, anthropic)")
	pf.StringVar(&flags.model, "model", "", "Model name")
	pf.StringVar(&flags.storage, "storage", "", "Transcript storage (file, sqlite, memory)")
	pf.StringVar(&flags.stateDir, "state-dir", "", "Directory holding the saved transcript")
}
