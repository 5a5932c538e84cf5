package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/middleware"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/config"
)

// tokenCmd signs a bearer token with JWT_SECRET for local testing.
func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token ACTOR_ID",
		Short: "Issue a bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case middleware.RoleCustomer, middleware.RoleSeller, middleware.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			cfg := config.Load()
			token, err := middleware.IssueToken(cfg.JWT.Secret, cfg.JWT.Issuer, args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", middleware.RoleCustomer, "customer, seller or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
