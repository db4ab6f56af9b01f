package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/revealer/internal/validation"
	"github.com/pendergraft/revealer/pkg/client"
)

var oracleAddress string

func createOracleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Act as the oracle node",
		Long: `Claim dispatched requests and deliver results, signing each call with
the shared callback secret from REVEALER_ORACLE_SECRET.

EXAMPLES:
  revealer oracle claim --oracle 0x...
  revealer oracle fulfill 0x<request-id> 1 1658845449 --oracle 0x...
`,
	}

	cmd.PersistentFlags().StringVar(&oracleAddress, "oracle", "", "oracle address (default from config)")

	var max int
	claim := &cobra.Command{
		Use:   "claim",
		Short: "Take pending requests addressed to this oracle",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newOracleClient()
			if err != nil {
				return err
			}
			return runClaim(c, max)
		},
	}
	claim.Flags().IntVar(&max, "max", 10, "maximum number of requests to claim")

	fulfill := &cobra.Command{
		Use:   "fulfill <request-id> <status> [kyc-timestamp]",
		Short: "Deliver a verification result",
		Long: `Deliver a result for a claimed request. status is the ordinal:
0 NOT_FOUND, 1 KYC_USER, 2 HUMAN_AND_UNIQUE. KYC_USER needs a non-zero
timestamp, the other outcomes need none.
`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newOracleClient()
			if err != nil {
				return err
			}
			return runFulfill(c, args)
		},
	}

	cmd.AddCommand(claim, fulfill)
	return cmd
}

func newOracleClient() (*client.Client, error) {
	addr := oracleAddress
	if addr == "" {
		if config := loadProjectConfigSilent(); config != nil {
			addr = config.Oracle.Address
		}
	}
	if addr == "" {
		return nil, errors.New("oracle address required (--oracle or [oracle] address in revealer.toml)")
	}
	oracle, err := validation.ParseNonZeroAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("oracle address: %w", err)
	}
	return client.New(getServer(), "", client.WithOracle(oracle, os.Getenv("REVEALER_ORACLE_SECRET"))), nil
}

func runClaim(c *client.Client, max int) error {
	claimed, err := c.Claim(context.Background(), max)
	if err != nil {
		return fmt.Errorf("failed to claim: %w", err)
	}
	if len(claimed) == 0 {
		fmt.Println("Nothing to claim")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST\tREVEALEE\tJOB\tPAYMENT")
	for _, d := range claimed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.RequestID, d.Revealee, d.JobID, d.Payment)
	}
	return w.Flush()
}

func runFulfill(c *client.Client, args []string) error {
	if _, err := validation.ParseRequestID(args[0]); err != nil {
		return err
	}
	st, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		return fmt.Errorf("invalid status %q", args[1])
	}
	var kyc uint64
	if len(args) == 3 {
		if kyc, err = strconv.ParseUint(args[2], 10, 64); err != nil {
			return fmt.Errorf("invalid kyc timestamp %q", args[2])
		}
	}

	accepted, err := c.Fulfill(context.Background(), args[0], uint8(st), kyc)
	if err != nil {
		return fmt.Errorf("failed to fulfill: %w", err)
	}
	if !accepted {
		fmt.Printf("⚠️  Result rejected for %s: status and timestamp do not match\n", common.HexToHash(args[0]).Hex())
		return nil
	}
	fmt.Printf("✅ Fulfilled %s\n", args[0])
	return nil
}
