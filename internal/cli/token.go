package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/evertag/internal/httpapi"
)

type tokenOutput struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		Long: `Mint a token for the /admin endpoints, signed with admin.jwt_secret.

Example:
  evertag token --subject ops@example.com --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			now := time.Now()
			if opts.Clock != nil {
				now = opts.Clock.Now()
			}

			auth := httpapi.AdminAuth{Secret: cfg.Admin.JWTSecret, Issuer: cfg.Admin.Issuer}
			token, err := httpapi.MintAdminToken(auth, subject, ttl, now)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot mint token", err)
			}

			out := tokenOutput{Token: token, Subject: subject, ExpiresAt: now.Add(ttl).UTC()}
			return newFormatter(cmd, opts).Success(out, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "who the token is for (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
