package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Tyrowin/linerelay/internal/server"
)

// loadConfig resolves the relay configuration. Later sources win:
// defaults, YAML file, .env file, environment, explicit flags.
func loadConfig(args []string, stderr io.Writer) (*server.Config, error) {
	defaults := server.NewConfig()
	flagged := *defaults
	var origins []string
	var configPath, envFile string

	flags := pflag.NewFlagSet("linerelay", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	flags.StringVar(&flagged.Host, "host", defaults.Host, "listen host (empty for all interfaces)")
	flags.IntVarP(&flagged.Port, "port", "p", defaults.Port, "listen port")
	flags.IntVar(&flagged.MaxLineSize, "max-line-size", defaults.MaxLineSize, "maximum accepted line length in bytes")
	flags.DurationVar(&flagged.WriteTimeout, "write-timeout", defaults.WriteTimeout, "per-recipient write deadline (0 disables)")
	flags.DurationVar(&flagged.ShutdownTimeout, "shutdown-timeout", defaults.ShutdownTimeout, "time allowed for connections to close on shutdown")
	flags.IntVar(&flagged.RateLimit.Burst, "rate-limit-burst", defaults.RateLimit.Burst, "lines allowed per refill interval per client (0 disables)")
	flags.DurationVar(&flagged.RateLimit.RefillInterval, "rate-limit-refill", defaults.RateLimit.RefillInterval, "rate limit refill interval")
	flags.StringVar(&flagged.WebSocketAddr, "ws-addr", defaults.WebSocketAddr, "address for the WebSocket gateway (empty disables)")
	flags.StringSliceVar(&origins, "allowed-origins", nil, "origins allowed to open WebSocket connections (* for any)")
	flags.StringVar(&flagged.LogFormat, "log-format", defaults.LogFormat, "log format: text or json")
	flags.StringVar(&flagged.LogLevel, "log-level", defaults.LogLevel, "log level: debug, info, warn, error")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(stderr, "linerelay: warning: loading %s: %v\n", envFile, err)
	}

	cfg := defaults
	if configPath != "" {
		loaded, err := server.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	overrides := map[string]func(){
		"host":              func() { cfg.Host = flagged.Host },
		"port":              func() { cfg.Port = flagged.Port },
		"max-line-size":     func() { cfg.MaxLineSize = flagged.MaxLineSize },
		"write-timeout":     func() { cfg.WriteTimeout = flagged.WriteTimeout },
		"shutdown-timeout":  func() { cfg.ShutdownTimeout = flagged.ShutdownTimeout },
		"rate-limit-burst":  func() { cfg.RateLimit.Burst = flagged.RateLimit.Burst },
		"rate-limit-refill": func() { cfg.RateLimit.RefillInterval = flagged.RateLimit.RefillInterval },
		"ws-addr":           func() { cfg.WebSocketAddr = flagged.WebSocketAddr },
		"allowed-origins":   func() { cfg.AllowedOrigins = origins },
		"log-format":        func() { cfg.LogFormat = flagged.LogFormat },
		"log-level":         func() { cfg.LogLevel = flagged.LogLevel },
	}
	flags.Visit(func(flag *pflag.Flag) {
		if apply, ok := overrides[flag.Name]; ok {
			apply()
		}
	})

	if args := flags.Args(); len(args) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", args)
	}

	sanitized := cfg.Sanitize()
	return &sanitized, nil
}
