package main

import (
	"context"

	"github.com/spf13/cobra"

	"docuflow/internal/platform"
	"docuflow/internal/smoketest"
)

func newSmokeCmd(a *app) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:     "smoke [function]",
		Aliases: []string{"test"},
		Short:   "Invoke a deployed Edge Function and check its response",
		Long: `POSTs an empty JSON body to the deployed function with the service role key
and checks that account_results[0] carries the diagnostic field.

Requires SUPABASE_URL (or NEXT_PUBLIC_SUPABASE_URL) and SUPABASE_SERVICE_ROLE_KEY,
read from the environment, .env.local or .env.

Example:
  docuflow-ops smoke process-emails`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.Flags().StringVar(&field, "field", smoketest.DefaultField, "field expected on account_results[0]")

	cmd.RunE = a.instrument("smoke", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		if err := a.requirePlatformCredentials(); err != nil {
			return err
		}
		fn := a.cfg.Platform.FunctionName
		if len(args) == 1 {
			fn = args[0]
		}
		if err := platform.ValidateName(fn); err != nil {
			return err
		}

		client, err := a.platformClient()
		if err != nil {
			return err
		}

		p := a.printer(cmd)
		p.Title("Smoke test: %s", fn)
		_, err = smoketest.NewChecker(client, p, a.logger, field).Run(ctx, fn, client.FunctionURL(fn))
		return err
	})
	return cmd
}
