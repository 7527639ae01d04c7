package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scholarbridge/internal/app"
	"scholarbridge/internal/pkg/jwtutil"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue admin or profile link tokens",
	}
	cmd.AddCommand(adminTokenCmd(), linkTokenCmd())
	return cmd
}

func adminTokenCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Issue an admin token for the reconciliation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set")
			}
			ttl := time.Duration(cfg.Auth.AdminTokenTTLHours) * time.Hour
			token, err := jwtutil.GenerateAdminToken(cfg.Auth.JWTSecret, ttl, operator)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "cli", "operator name recorded as the token subject")
	return cmd
}

func linkTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link [record-id]",
		Short: "Print a signed profile link for a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set")
			}
			links := app.NewProfileLinks(cfg.App.PublicBaseURL, cfg.Auth.JWTSecret, cfg.LinkTokenTTL(), true)
			link, err := links.For(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
}
