package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/server"
	"github.com/driftchat/driftchat/store"
	"github.com/driftchat/driftchat/store/db"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "driftchat",
	Short: "A chat server with streaming AI responses",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:             viper.GetString("mode"),
			Addr:             viper.GetString("addr"),
			Port:             viper.GetInt("port"),
			Data:             viper.GetString("data"),
			Driver:           viper.GetString("driver"),
			DSN:              viper.GetString("dsn"),
			Secret:           viper.GetString("secret"),
			EncryptionKey:    viper.GetString("encryption-key"),
			OpenRouterAPIKey: viper.GetString("openrouter-api-key"),
			OpenAIAPIKey:     viper.GetString("openai-api-key"),
			GeminiAPIKey:     viper.GetString("gemini-api-key"),
			DeepSeekAPIKey:   viper.GetString("deepseek-api-key"),
			Version:          version,
		}
		if err := instanceProfile.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logLevel := slog.LevelInfo
		if instanceProfile.IsDev() {
			logLevel = slog.LevelDebug
		}
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		s, err := server.NewServer(instanceProfile, storeInstance, logger)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			slog.Info("received signal, shutting down", "signal", sig.String())
			s.Shutdown(ctx)
			cancel()
		}()

		if err := s.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode of the server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8082, "port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("secret", "", "secret used to sign access tokens")
	rootCmd.PersistentFlags().String("encryption-key", "", "passphrase protecting stored API keys")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	viper.SetDefault("openrouter-api-key", "")
	viper.SetDefault("openai-api-key", "")
	viper.SetDefault("gemini-api-key", "")
	viper.SetDefault("deepseek-api-key", "")

	viper.SetEnvPrefix("driftchat")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
