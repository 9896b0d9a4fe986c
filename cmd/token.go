package cmd

import (
	"fmt"
	"time"

	"cityfix-be/config"
	"cityfix-be/identity"
	"cityfix-be/utils"

	"github.com/spf13/cobra"
)

// tokenCmd mints HS256 bearer tokens for AUTH_MODE=hmac development setups.
func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue a development bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}

			token, err := utils.GenerateToken(cfg.JWTSecret, identity.NormalizeEmail(args[0]), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
