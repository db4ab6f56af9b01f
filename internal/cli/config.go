package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"revealer.toml", ".revealer.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server string           `toml:"server"`
	Caller string           `toml:"caller,omitempty"`
	Oracle OracleConfigTOML `toml:"oracle,omitempty"`
}

// OracleConfigTOML configures the oracle commands. The callback secret is
// never read from the file, only from REVEALER_ORACLE_SECRET.
type OracleConfigTOML struct {
	Address string `toml:"address,omitempty"`
}

// GlobalConfig is the user configuration (stored in ~/.revealer/config.yaml)
type GlobalConfig struct {
	Server string `yaml:"server"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL, callerAddr string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a revealer.toml configuration file in the current directory.

EXAMPLES:
  # Create config with default server
  revealer config init

  # Create config for a server running without API keys
  revealer config init --server http://localhost:8080 --caller 0x...

  # Overwrite existing config
  revealer config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(serverURL, callerAddr, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&callerAddr, "caller", "", "caller address sent when the server runs without API keys")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows the local project config (revealer.toml), the global config from
~/.revealer/config.yaml and the effective values.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigInit(serverURL, callerAddr string, force bool) error {
	configPath := projectConfigFiles[0]

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# Revealer client configuration")
	if err := toml.NewEncoder(f).Encode(ProjectConfig{Server: serverURL, Caller: callerAddr}); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'revealer auth login' to store an API key")
	fmt.Println("  2. Run 'revealer settings show' to check the connection")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --api-key, --caller, --config")
	fmt.Println()

	fmt.Println("2. Environment variables")
	for _, name := range []string{"REVEALER_SERVER", "REVEALER_API_KEY", "REVEALER_CALLER"} {
		value := os.Getenv(name)
		switch {
		case value == "":
			value = "(not set)"
		case name == "REVEALER_API_KEY":
			value = maskAPIKey(value)
		}
		fmt.Printf("   %s=%s\n", name, value)
	}
	fmt.Println()

	fmt.Println("3. Local project config (revealer.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	default:
		fmt.Printf("   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Printf("   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Caller != "" {
			fmt.Printf("   caller: %s\n", projectConfig.Caller)
		}
		if projectConfig.Oracle.Address != "" {
			fmt.Printf("   oracle.address: %s\n", projectConfig.Oracle.Address)
		}
	}
	fmt.Println()

	fmt.Println("4. Global config (~/.revealer/config.yaml)")
	if global := loadGlobalConfig(); global != nil && global.Server != "" {
		fmt.Printf("   server: %s\n", global.Server)
	} else {
		fmt.Println("   (not found)")
	}
	fmt.Println()

	fmt.Println("5. Credentials (~/.revealer/credentials)")
	creds, err := loadCredentials()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	case len(creds.Servers) == 0:
		fmt.Println("   (no credentials stored)")
	default:
		for server, cred := range creds.Servers {
			fmt.Printf("   %s: %s\n", server, maskAPIKey(cred.APIKey))
		}
	}
	fmt.Println()

	fmt.Println("Effective configuration:")
	fmt.Printf("   Server:  %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Printf("   API Key: %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   API Key: (not set)")
	}
	if c := getCaller(); c != "" {
		fmt.Printf("   Caller:  %s\n", c)
	}

	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but reports parse failures on stderr.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}

func loadGlobalConfig() *GlobalConfig {
	data, err := os.ReadFile(filepath.Join(credentialsDir(), "config.yaml"))
	if err != nil {
		return nil
	}
	var global GlobalConfig
	if err := yaml.Unmarshal(data, &global); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load global config: %v\n", err)
		return nil
	}
	return &global
}
