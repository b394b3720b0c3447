package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursechat/coursechat-server/internal/app"
	"github.com/coursechat/coursechat-server/internal/auth"
	"github.com/coursechat/coursechat-server/internal/config"
	"github.com/coursechat/coursechat-server/internal/log"
	"github.com/coursechat/coursechat-server/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:          "coursechat-server",
		Short:        "Real-time chat and presence server for course marketplaces",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLog := log.New("info")

			cfg, path, err := config.Load(bootLog, configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting coursechat server")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger, nil)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address override")

	cmd.AddCommand(tokenCmd(&configPath))
	return cmd
}

// tokenCmd mints a signed access token for local testing against /ws and /api.
func tokenCmd(configPath *string) *cobra.Command {
	var (
		userID int64
		name   string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Mint an access token for a user",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(nil, *configPath)
			if err != nil {
				return err
			}

			jwtCfg := &auth.JWTConfig{
				Secret:   []byte(cfg.JWT.Secret),
				Issuer:   cfg.JWT.Issuer,
				Audience: cfg.JWT.Audience,
				TTL:      cfg.JWT.TTL,
			}
			if ttl > 0 {
				jwtCfg.TTL = ttl
			}

			token, err := auth.GenerateToken(jwtCfg, userID, name, store.Role(role))
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 1, "user id to embed in the token")
	cmd.Flags().StringVar(&name, "name", "dev", "display name to embed in the token")
	cmd.Flags().StringVar(&role, "role", string(store.RoleStudent), "role claim (student, instructor, admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime override")

	return cmd
}
