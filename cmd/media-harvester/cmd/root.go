package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-harvester/internal/api"
	"go-media-harvester/internal/config"
	"go-media-harvester/internal/downloader"
	"go-media-harvester/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

var (
	logLevel  string
	logFormat string
)

// logHttpFlag holds the value of the --log-http flag
var logHttpFlag bool

// savePathFlag holds the value of the --save-path flag
var savePathFlag string

// maxConcurrentFlag holds the value of the --max-concurrent flag
var maxConcurrentFlag int

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport is the transport used by direct fetches (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

var rootCmd = &cobra.Command{
	Use:   "media-harvester",
	Short: "Discover media on web pages and download it through a bounded queue",
	Long: `Media Harvester renders pages, extracts the video and audio they reference,
and downloads them through a queue that keeps failed transfers resumable.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			log.Debug("Closing HTTP logging transport file.")
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing HTTP log file")
			}
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&logHttpFlag, "log-http", false, "Log fetch request/response headers to http.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to store artifacts (overrides config)")
	rootCmd.PersistentFlags().IntVar(&maxConcurrentFlag, "max-concurrent", 0, "Number of simultaneous downloads (overrides config, 0 uses config)")

	cobra.OnInitialize(initLogging)
}

// initLogging configures logrus based on persistent flags
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

// loadGlobalConfig loads the configuration, applies flag overrides and sets up the
// transport used by direct fetches.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Defaults are still usable; a missing config file is common.
		log.WithError(err).Warnf("Failed to load configuration from %s, using defaults", cfgFile)
	}

	if cmd.Flags().Changed("log-http") {
		globalConfig.LogHttpRequests = logHttpFlag
	}
	if cmd.Flags().Changed("save-path") {
		if savePathFlag != "" {
			globalConfig.SavePath = savePathFlag
			// Derived paths follow the new save path.
			reset := config.ApplyDefaults(models.Config{SavePath: savePathFlag})
			globalConfig.DatabasePath = reset.DatabasePath
			globalConfig.IndexPath = reset.IndexPath
			globalConfig.ReportPath = reset.ReportPath
			log.Debugf("Overriding SavePath based on --save-path flag: %s", savePathFlag)
		} else {
			log.Warn("--save-path flag provided but value is empty, ignoring.")
		}
	}
	if cmd.Flags().Changed("max-concurrent") {
		if maxConcurrentFlag > 0 {
			globalConfig.MaxConcurrent = maxConcurrentFlag
		} else {
			log.Warnf("--max-concurrent flag provided with invalid value %d, using config value: %d", maxConcurrentFlag, globalConfig.MaxConcurrent)
		}
	}

	globalHttpTransport = downloader.NewTransport(globalConfig)
	if globalConfig.LogHttpRequests {
		logFilePath := "http.log"
		if globalConfig.SavePath != "" {
			if _, statErr := os.Stat(globalConfig.SavePath); statErr == nil {
				logFilePath = filepath.Join(globalConfig.SavePath, logFilePath)
			} else {
				log.Warnf("SavePath '%s' not found, saving http.log to current directory.", globalConfig.SavePath)
			}
		}
		log.Infof("HTTP logging to file: %s", logFilePath)
		loggingTransport, err := api.NewLoggingTransport(globalHttpTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize HTTP logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}
	return nil
}
