package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zzdxppq/shop-video-scout/internal/auth"
	"github.com/zzdxppq/shop-video-scout/internal/config"
	"github.com/zzdxppq/shop-video-scout/internal/rbac"
)

func newTokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:         "token",
		Short:       "Issue a bearer token for the reference server",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(secret) == "" {
				secret = config.Load().JWTSecret
			}
			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("no signing secret: pass --secret or set SCRIPT_JWT_SECRET")
			}
			normalized := rbac.Normalize(strings.ToLower(strings.TrimSpace(role)))
			if string(normalized) != strings.ToLower(strings.TrimSpace(role)) {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.NewToken([]byte(secret), subject, string(normalized), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to SCRIPT_JWT_SECRET)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject")
	cmd.Flags().StringVar(&role, "role", string(rbac.RoleEditor), "Role: viewer, editor or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
