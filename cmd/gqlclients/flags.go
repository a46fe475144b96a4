package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	Client      string
	Query       string
	Variables   string
	Subscribe   bool
	Token       string
	TokenStore  string
	CacheFile   string
	Timeout     time.Duration
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	ShowVersion bool
	Validate    bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("GQLCLIENTS_CONFIG", "gqlclients.yaml"),
		"Path to the client declarations (env: GQLCLIENTS_CONFIG)")
	fs.StringVar(&cfg.Client, "client", getEnv("GQLCLIENTS_CLIENT", "default"),
		"Client key to run the operation with (env: GQLCLIENTS_CLIENT)")
	fs.StringVar(&cfg.Query, "query", getEnv("GQLCLIENTS_QUERY", ""),
		"GraphQL document to execute; @path reads it from a file (env: GQLCLIENTS_QUERY)")
	fs.StringVar(&cfg.Variables, "variables", getEnv("GQLCLIENTS_VARIABLES", ""),
		"Operation variables as a JSON object (env: GQLCLIENTS_VARIABLES)")
	fs.BoolVar(&cfg.Subscribe, "subscribe", getEnvBool("GQLCLIENTS_SUBSCRIBE", false),
		"Run the document as a subscription and print every event (env: GQLCLIENTS_SUBSCRIBE)")
	fs.StringVar(&cfg.Token, "token", getEnv("GQLCLIENTS_TOKEN", ""),
		"Token stored for the client before the operation (env: GQLCLIENTS_TOKEN)")
	fs.StringVar(&cfg.TokenStore, "token-store",
		getEnv("GQLCLIENTS_TOKEN_STORE", "memory"),
		"Token storage: memory, jar, a redis:// URL, or a bbolt file path (env: GQLCLIENTS_TOKEN_STORE)")
	fs.StringVar(&cfg.CacheFile, "cache-file", getEnv("GQLCLIENTS_CACHE_FILE", ""),
		"Restore client caches from this file and save them after the operation (env: GQLCLIENTS_CACHE_FILE)")
	fs.DurationVar(&cfg.Timeout, "timeout",
		getEnvDuration("GQLCLIENTS_TIMEOUT", 30*time.Second),
		"Operation timeout, 0 for none (env: GQLCLIENTS_TIMEOUT)")
	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("GQLCLIENTS_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: GQLCLIENTS_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("GQLCLIENTS_LOG_FORMAT", "text"),
		"Log format: json, text (env: GQLCLIENTS_LOG_FORMAT)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("GQLCLIENTS_METRICS_ADDR", ""),
		"Serve Prometheus metrics on this address, empty to disable (env: GQLCLIENTS_METRICS_ADDR)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if !cfg.Validate && cfg.Query == "" {
		return fmt.Errorf("--query is required")
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %v", cfg.Timeout)
	}
	return nil
}

func printUsage(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - run GraphQL operations through declared clients

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Query the default client
  %s --config=clients.yaml --query='{ me { id name } }'

  # Authenticate and follow a subscription on another client
  %s --client=live --token=abc --subscribe --query='subscription { tick }'

  # Keep tokens across runs
  %s --token-store=$HOME/.gqlclients/tokens.db --query=@me.graphql

  # Share tokens through Redis and answer repeat queries from a cache file
  %s --token-store=redis://localhost:6379/0 --cache-file=cache.txt --query=@me.graphql

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
