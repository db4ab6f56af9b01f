package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/revealer/pkg/client"
)

func createGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <request-id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := newClient().GetRequest(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get request: %w", err)
			}
			if jsonOutput {
				return printJSON(req)
			}
			printRequest(req)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func createCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Cancel an expired request and reclaim the fee",
		Long: `Cancel one of your own requests after it expired without an answer.
The escrowed fee is returned to you.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := newClient().Cancel(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to cancel request: %w", err)
			}
			fmt.Printf("✅ Canceled %s, refunded %s\n", req.ID, req.Payment)
			return nil
		},
	}
}

func createLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <requester>",
		Short: "Print the most recent request id of a requester",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := newClient().LatestRequestID(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get latest request: %w", err)
			}
			fmt.Println(id)
			return nil
		},
	}
}

func createStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <ordinal>",
		Short: "Print the name of a status ordinal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ordinal, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ordinal %q", args[0])
			}
			name, err := newClient().StatusName(context.Background(), ordinal)
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	}
}

func printRequest(req *client.Request) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", req.ID)
	fmt.Fprintf(w, "State:\t%s\n", req.State)
	fmt.Fprintf(w, "Requester:\t%s\n", req.Requester)
	fmt.Fprintf(w, "Revealee:\t%s\n", req.Revealee)
	fmt.Fprintf(w, "Payment:\t%s\n", req.Payment)
	fmt.Fprintf(w, "Expires:\t%s\n", formatUnix(req.Expiration))
	if req.IsFulfilled {
		fmt.Fprintf(w, "Status:\t%s\n", req.Status)
		if req.KYCTimestamp != 0 {
			fmt.Fprintf(w, "KYC at:\t%s\n", formatUnix(int64(req.KYCTimestamp)))
		}
	}
	w.Flush()
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// truncateID shortens a 0x-prefixed identifier for table output
func truncateID(id string) string {
	if len(id) <= 14 {
		return id
	}
	return id[:8] + "..." + id[len(id)-4:]
}
