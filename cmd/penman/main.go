// -----------------------------------------------------------------------
// Penman - asynchronous AI post generation service
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/app"
	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/server"
)

// configPaths allows multiple -config flags, later files overriding earlier
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	serverHost  = flag.String("host", "", "Server host (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Penman version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover a config file when none is given
	if len(configFiles) == 0 {
		if _, err := os.Stat("penman.toml"); err == nil {
			configFiles = append(configFiles, "penman.toml")
		}
	}

	config, err := common.LoadConfig(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// CLI flags take precedence over config files and environment
	if *serverPort != 0 {
		config.Server.Port = *serverPort
	}
	if *serverHost != "" {
		config.Server.Host = *serverHost
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Bool("automatic", config.Scheduler.Automatic).
		Msg("Application configuration loaded")

	ctx := context.Background()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}

	srv := server.New(application)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Give the listener a moment before announcing readiness
	time.Sleep(100 * time.Millisecond)
	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}
