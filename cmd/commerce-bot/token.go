package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sungwon/wa-commerce/internal/auth"
	"github.com/sungwon/wa-commerce/internal/config"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Auth.SigningKey == "" {
				return fmt.Errorf("auth.signing_key is not set")
			}
			if expiry <= 0 {
				expiry = cfg.Auth.AccessTokenExpiry
			}

			token, err := auth.NewJWTService(jwtConfig(cfg, expiry)).GenerateToken(subject, auth.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Operator identity recorded in the token (required)")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "Token lifetime (default auth.access_token_expiry)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func jwtConfig(cfg *config.Config, expiry time.Duration) auth.JWTConfig {
	return auth.JWTConfig{
		SigningKey:  cfg.Auth.SigningKey,
		TokenExpiry: expiry,
		Issuer:      cfg.Auth.Issuer,
		Audience:    cfg.Auth.Audience,
	}
}
