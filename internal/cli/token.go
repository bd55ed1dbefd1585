package cli

import (
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tutor_gateway/internal/auth"
	"tutor_gateway/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   string
		ttl     time.Duration
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			parsed, err := auth.ParseRoles(roles)
			if err != nil {
				return err
			}

			token, exp, err := auth.GenerateAdminJWT(subject, parsed, ttl, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if quiet {
				printf(out, "%s\n", token)
				return nil
			}
			printf(out, "%s %s\n", color.CyanString("Token:"), token)
			printf(out, "%s %s\n", color.CyanString("Expires:"), exp.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "tutorctl", "token subject")
	cmd.Flags().StringVar(&roles, "roles", "admin", "comma separated roles (admin, viewer)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the token")
	return cmd
}
