package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/helpdesk/internal/auth"
	"github.com/gosuda/helpdesk/internal/secrets"
)

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an admin API token signed with HELPDESK_ADMIN_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("HELPDESK_ADMIN_JWT_SECRET")
			if len(secret) < 32 {
				return errors.New("HELPDESK_ADMIN_JWT_SECRET must be set and at least 32 characters")
			}

			token, err := auth.IssueToken(secret, args[0], role, ttl)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&role, "role", auth.RoleViewer, "token role (admin or viewer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func keygenCmd() *cobra.Command {
	var memory bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an admin API key and the hash to put in HELPDESK_ADMIN_API_KEY_HASHES",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if memory {
				key, err := secrets.GenerateKey()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, key)
				return err
			}

			raw, hash, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(out, "key:  %s\nhash: %s\n", raw, hash)
			return err
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "generate a HELPDESK_REDIS_MEMORY_KEY instead")
	return cmd
}
