package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/revealer/pkg/client"
)

func createEventsCmd() *cobra.Command {
	var q client.EventQuery
	var all, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List emitted events",
		Long: `List Requested and Fulfilled events in emission order.

EXAMPLES:
  revealer events
  revealer events --name Fulfilled --limit 50
  revealer events --request-id 0x... --json
  revealer events --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(newClient(), q, all, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&q.Name, "name", "", "only events with this name (Requested or Fulfilled)")
	cmd.Flags().StringVar(&q.RequestID, "request-id", "", "only events of this request")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&q.Cursor, "cursor", "", "continue after this cursor")
	cmd.Flags().BoolVar(&all, "all", false, "follow cursors until the log is exhausted")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runEvents(c *client.Client, q client.EventQuery, all, jsonOutput bool) error {
	ctx := context.Background()
	var events []client.Event
	var next string

	for {
		page, err := c.Events(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		events = append(events, page.Data...)
		next = page.NextCursor
		if !all || !page.HasMore || page.NextCursor == "" {
			break
		}
		q.Cursor = page.NextCursor
	}

	if jsonOutput {
		return printJSON(events)
	}

	if len(events) == 0 {
		fmt.Println("No events found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tNAME\tREQUEST\tREQUESTER\tREVEALEE\tSTATUS")
	for _, e := range events {
		status := e.Status
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.At, e.Name, truncateID(e.RequestID), truncateID(e.Requester), truncateID(e.Revealee), status)
	}
	w.Flush()

	if !all && next != "" {
		fmt.Printf("\nMore events: --cursor %s\n", next)
	}
	return nil
}
