package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/revealer/pkg/client"
)

// setters maps the settable parameter names to client calls
var setters = map[string]func(*client.Client, context.Context, string) (*client.Settings, error){
	"oracle":      (*client.Client).SetOracle,
	"payment":     (*client.Client).SetOraclePayment,
	"link":        (*client.Client).SetLink,
	"sign-up-url": (*client.Client).SetSignUpURL,
	"job-id":      (*client.Client).SetJobID,
	"owner":       (*client.Client).TransferOwnership,
}

func createSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the deployment settings",
	}

	var jsonOutput bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient().Settings(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get settings: %w", err)
			}
			if jsonOutput {
				return printJSON(s)
			}
			printSettings(s)
			return nil
		},
	}
	show.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	set := &cobra.Command{
		Use:   "set <param> <value>",
		Short: "Change a setting (owner only)",
		Long: fmt.Sprintf(`Change a deployment setting. Only the owner may do this.

Parameters: %s

EXAMPLES:
  revealer settings set payment 100000000000000000
  revealer settings set job-id 14f849816fac426abda2992cbf47d2cd
  revealer settings set owner 0x...
`, strings.Join(setterNames(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSet(args[0], args[1])
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

func runSettingsSet(param, value string) error {
	set, ok := setters[param]
	if !ok {
		return fmt.Errorf("unknown setting %q (one of %s)", param, strings.Join(setterNames(), ", "))
	}
	s, err := set(newClient(), context.Background(), value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", param, err)
	}
	fmt.Printf("✅ Updated %s\n\n", param)
	printSettings(s)
	return nil
}

func setterNames() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printSettings(s *client.Settings) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Owner:\t%s\n", s.Owner)
	fmt.Fprintf(w, "Oracle:\t%s\n", s.Oracle)
	fmt.Fprintf(w, "Link:\t%s\n", s.Link)
	fmt.Fprintf(w, "Payment:\t%s\n", s.Payment)
	fmt.Fprintf(w, "Job ID:\t%s\n", s.JobID)
	fmt.Fprintf(w, "Sign-up URL:\t%s\n", s.SignUpURL)
	w.Flush()
}
