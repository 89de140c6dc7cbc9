package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"collectivepay/internal/app"
	"collectivepay/internal/payment"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [payment-id]",
		Short: "Run the return flow for a payment",
		Long: `Run the same lookup, verification and state change as the return
endpoint. Useful when the buyer never came back from Open Collective.`,
		Args: cobra.ExactArgs(1),
		RunE: runReconcile,
	}

	addReturnFlags(cmd)

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Adapter.HandleReturn(cmd.Context(), args[0], returnParams(cmd))
	if err != nil {
		return fmt.Errorf("reconciling %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", out.Payment.ID, out.Kind)
	return nil
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [payment-id]",
		Short: "Print a payment with its audit record and refund link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), struct {
				Payment *payment.Payment     `json:"payment"`
				Control *payment.ControlInfo `json:"control,omitempty"`
			}{p, a.Adapter.ControlInfo(p)})
		},
	}
}
