package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-mangadex-upload/internal/api"
	"go-mangadex-upload/internal/config"
	"go-mangadex-upload/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// apiDelayFlag holds the value of the --api-delay flag
var apiDelayFlag int

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// Logging flags
var logLevel string
var logFormat string // "text" or "json"

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport is the base transport, wrapped for logging when enabled
var globalHttpTransport http.RoundTripper

// apiLogFile is where --log-api writes request/response dumps
const apiLogFile = "api.log"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "md-uploader",
	Short: "Upload chapter archives to MangaDex",
	Long: `md-uploader uploads zip/cbz chapter archives to MangaDex.
Chapter metadata is read from the archive file name, for example
"Series [es] - c14.5 (v2) (Chapter Title) [Group A+Group B] {v2}.cbz".`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			log.Debug("Closing API logging transport file.")
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		api.CloseAllLoggingTransports()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigPath, "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiDelayFlag, "api-delay", -1, "Minimum delay between API calls in ms (overrides config, -1 uses config value)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config value)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
}

// initLogging configures logrus from the --log-level and --log-format flags.
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// loadGlobalConfig loads the configuration, applies flag overrides and sets
// up the global HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	initLogging()

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Not fatal here: parse and history work without a config file.
		// Commands that need credentials check for them.
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
	}

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}

	if cmd.Flags().Changed("api-delay") {
		if apiDelayFlag >= 0 {
			globalConfig.ApiDelayMs = apiDelayFlag
			log.Debugf("Overriding ApiDelayMs based on --api-delay flag: %d ms", apiDelayFlag)
		} else {
			log.Warnf("--api-delay flag provided with invalid value %d, using config value: %d ms", apiDelayFlag, globalConfig.ApiDelayMs)
		}
	}

	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
			log.Debugf("Overriding ApiClientTimeoutSec based on --api-timeout flag: %d sec", apiTimeoutFlag)
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ApiClientTimeoutSec)
		}
	}

	config.ApplyDefaults(&globalConfig)

	globalHttpTransport = http.DefaultTransport
	if globalConfig.LogApiRequests {
		log.Infof("API logging to file: %s", apiLogFile)
		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, apiLogFile)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}
	return nil
}

// newHttpClient returns a client using the global transport and the
// configured timeout.
func newHttpClient() *http.Client {
	if globalHttpTransport == nil {
		globalHttpTransport = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second,
		Transport: globalHttpTransport,
	}
}
