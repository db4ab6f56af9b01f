package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pendergraft/revealer/pkg/client"
)

func createLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Fund your account on a development server",
		Long: `Mint test tokens and approve the consumer on a server running the
in-memory ledger. Servers connected to a token network do not offer these
commands.

EXAMPLES:
  revealer ledger mint 1000000000000000000
  revealer ledger approve 100000000000000000
`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mint <amount>",
		Short: "Mint tokens to yourself",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(newClient().Mint, "Minted", args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "approve <amount>",
		Short: "Set your allowance to the consumer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(newClient().Approve, "Approved", args[0])
		},
	})

	return cmd
}

func runLedger(op func(context.Context, string) (*client.Account, error), verb, amount string) error {
	account, err := op(context.Background(), amount)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	fmt.Printf("✅ %s %s\n", verb, amount)
	fmt.Printf("   Balance:   %s\n", account.Balance)
	fmt.Printf("   Allowance: %s (spender %s)\n", account.Allowance, account.Spender)
	return nil
}
