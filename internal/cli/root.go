// Package cli implements the revealer command line client.
package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/revealer/pkg/client"
)

var (
	cfgFile string
	server  string
	apiKey  string
	caller  string
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "revealer",
		Short:   "Identity verification oracle client",
		Long:    `Revealer is a CLI for inspecting verification requests and administering a revealer server.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: revealer.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&caller, "caller", "", "caller address, for servers running without API keys")

	rootCmd.AddCommand(createGetCmd())
	rootCmd.AddCommand(createCancelCmd())
	rootCmd.AddCommand(createLatestCmd())
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createSettingsCmd())
	rootCmd.AddCommand(createEventsCmd())
	rootCmd.AddCommand(createLedgerCmd())
	rootCmd.AddCommand(createOracleCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// getServer returns the server URL from flag, env, config file, or default
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("REVEALER_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Global config file (YAML)
	if global := loadGlobalConfig(); global != nil && global.Server != "" {
		return global.Server
	}

	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}

	if env := os.Getenv("REVEALER_API_KEY"); env != "" {
		return env
	}

	// Credentials file (keyed by server URL)
	if cred := getCredential(getServer()); cred != "" {
		return cred
	}

	return ""
}

// getCaller returns the caller address from flag, env, or project config
func getCaller() string {
	if caller != "" {
		return caller
	}
	if env := os.Getenv("REVEALER_CALLER"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil {
		return config.Caller
	}
	return ""
}

// newClient builds an API client from the resolved server and credentials
func newClient() *client.Client {
	var opts []client.Option
	if c := getCaller(); c != "" {
		opts = append(opts, client.WithCaller(c))
	}
	return client.New(getServer(), getAPIKey(), opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
