package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spendwise/internal/auth"
)

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user",
		Long: `token signs a JWT for user-id with JWT_SECRET. It stands in for an external
identity provider during development.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			userID := strings.TrimSpace(args[0])
			if userID == "" {
				return fmt.Errorf("user id must not be empty")
			}
			tok, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL).Generate(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}
