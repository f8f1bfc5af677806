package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"docuflow/internal/deploy"
	"docuflow/internal/platform"
)

func newDeployCmd(a *app) *cobra.Command {
	var (
		projectRef  string
		noVerifyJWT bool
	)
	cmd := &cobra.Command{
		Use:   "deploy [function]",
		Short: "Deploy an Edge Function with the Supabase CLI",
		Long: `Deploys an Edge Function to the linked platform project.

This command:
  1. Checks that the supabase CLI is installed
  2. Logs in if the CLI is not authenticated
  3. Links the project
  4. Deploys the function and prints the next steps

The function defaults to DOCUFLOW_FUNCTION_NAME (process-emails).`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.Flags().StringVar(&projectRef, "project-ref", "", "platform project ref (default from SUPABASE_PROJECT_REF or SUPABASE_URL)")
	cmd.Flags().BoolVar(&noVerifyJWT, "no-verify-jwt", false, "deploy without JWT verification")

	cmd.RunE = a.instrument("deploy", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		fn := a.cfg.Platform.FunctionName
		if len(args) == 1 {
			fn = args[0]
		}
		if err := platform.ValidateName(fn); err != nil {
			return err
		}
		ref := a.cfg.Platform.ProjectRef
		if projectRef != "" {
			ref = projectRef
		}

		var fnURL string
		if a.cfg.Platform.URL != "" {
			fnURL = strings.TrimRight(a.cfg.Platform.URL, "/") + "/functions/v1/" + fn
		}

		d := deploy.New(a.runner, a.printer(cmd), a.logger)
		return d.Deploy(ctx, deploy.Options{
			Function:    fn,
			ProjectRef:  ref,
			NoVerifyJWT: noVerifyJWT,
			FunctionURL: fnURL,
		})
	})
	return cmd
}
