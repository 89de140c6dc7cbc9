package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"collectivepay/internal/app"
	"collectivepay/internal/providers/opencollective"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "collectivepay",
		Short:         "Operator tools for Open Collective payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log requests to stderr")

	// Add subcommands
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(showCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and a stderr logger that stays quiet unless
// --verbose is set.
func setup(cmd *cobra.Command) (*app.Config, *slog.Logger, error) {
	cfg, err := app.Load()
	if err != nil {
		return nil, nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	level := "error"
	if verbose {
		level = "debug"
	}
	return cfg, app.NewLogger(os.Stderr, level, "text"), nil
}

// addReturnFlags registers the parameters the ledger appends to the return URL.
func addReturnFlags(cmd *cobra.Command) {
	cmd.Flags().String("order-id", "", "Legacy or structured order id (orderId)")
	cmd.Flags().String("order-id-v2", "", "Structured order id (orderIdV2)")
	cmd.Flags().String("transaction-id", "", "Transaction id (transactionid)")
	cmd.Flags().String("status", "", "Status reported on the redirect")
}

func returnParams(cmd *cobra.Command) opencollective.ReturnParameters {
	orderID, _ := cmd.Flags().GetString("order-id")
	orderIDV2, _ := cmd.Flags().GetString("order-id-v2")
	transactionID, _ := cmd.Flags().GetString("transaction-id")
	status, _ := cmd.Flags().GetString("status")

	q := url.Values{}
	q["orderId"] = []string{orderID}
	q["orderIdV2"] = []string{orderIDV2}
	q["transactionid"] = []string{transactionID}
	q["status"] = []string{status}
	return opencollective.ParseReturnParameters(q)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
