package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collectivepay/internal/providers/opencollective"
)

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve return parameters to an Open Collective order",
		Long: `Resolve the parameters of a return URL to the order record the
service would verify, trying the same fallbacks. Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: runLookup,
	}

	addReturnFlags(cmd)
	cmd.Flags().StringP("event", "e", "", "Event code used to pick the collective slug")

	return cmd
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ref, err := opencollective.Resolve(returnParams(cmd))
	if err != nil {
		return err
	}

	event, _ := cmd.Flags().GetString("event")
	client := opencollective.NewClient(&cfg.OpenCollective, logger)

	rec, err := client.FetchOrder(cmd.Context(), ref, cfg.OpenCollective.PrimarySlug(event))
	if err != nil {
		return fmt.Errorf("looking up %s: %w", ref, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s\n", ref, opencollective.ClassifyStatus(rec.Status))
	return printJSON(cmd.OutOrStdout(), rec)
}
