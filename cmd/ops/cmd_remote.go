package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"docuflow/internal/gitremote"
)

func newRemoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage the git remote",
	}
	cmd.AddCommand(newRemoteSetupCmd(a))
	return cmd
}

func newRemoteSetupCmd(a *app) *cobra.Command {
	var (
		remote string
		branch string
		push   bool
		noPush bool
	)
	cmd := &cobra.Command{
		Use:   "setup [url]",
		Short: "Add or update the git remote and optionally push",
		Long: `Points the repository at a hosted remote. Without a URL argument the URL is
asked for interactively; an empty answer cancels without changes.

An existing remote is updated with set-url, otherwise it is added. The current
branch is pushed when --push is given or the prompt is confirmed.`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.Flags().StringVar(&remote, "remote", "", "remote name (default from GIT_REMOTE or origin)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch to push (default current branch)")
	cmd.Flags().BoolVar(&push, "push", false, "push without asking")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "do not push and do not ask")
	cmd.MarkFlagsMutuallyExclusive("push", "no-push")

	cmd.RunE = a.instrument("remote setup", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		opts := gitremote.Options{Remote: a.cfg.Git.Remote, Branch: branch}
		if remote != "" {
			opts.Remote = remote
		}
		if opts.Branch == "" {
			opts.Branch = a.cfg.Git.Branch
		}
		if len(args) == 1 {
			opts.URL = args[0]
		}
		switch {
		case push:
			opts.Push = &push
		case noPush:
			f := false
			opts.Push = &f
		}

		p := a.printer(cmd)
		s := gitremote.NewSetup(a.runner, gitremote.NewPrompter(a.stdin, cmd.OutOrStdout()), p, a.logger)
		_, err := s.Run(ctx, opts)
		if errors.Is(err, gitremote.ErrCancelled) {
			return nil
		}
		return err
	})
	return cmd
}
