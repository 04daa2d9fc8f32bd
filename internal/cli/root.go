package cli

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"qa-gateway/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "qagateway",
	Short: "Question-answering gateway with a semantic answer cache",
	Long: `qagateway answers questions through a paid chat completion API and
remembers every answer. Once a semantically similar question has been asked
often enough, the stored answer is served without calling the API again.

Example usage:
  qagateway                       # Start the HTTP server (same as serve)
  qagateway ping --model llama3   # Check the upstream API key and model
  qagateway stats                 # Show what the cache holds`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		log, err = newLogger(cfg.Logging)
		return err
	},
	RunE: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFile, "config file")
}

func newLogger(c config.LoggingConfig) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	level := c.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "logging.level")
	}
	l.SetLevel(lvl)

	switch strings.ToLower(c.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("unknown logging.format %q", c.Format)
	}
	return l, nil
}
