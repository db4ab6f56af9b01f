package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Network holds the deployment parameters for one chain.
type Network struct {
	Name      string `toml:"name" yaml:"name"`
	Link      string `toml:"link" yaml:"link"`
	Oracle    string `toml:"oracle" yaml:"oracle"`
	JobID     string `toml:"job_id" yaml:"job_id"`
	Payment   string `toml:"payment" yaml:"payment"`
	SignUpURL string `toml:"sign_up_url" yaml:"sign_up_url"`
}

// networkFile is the on-disk layout: a table of networks keyed by chain id.
type networkFile struct {
	Networks map[string]Network `toml:"networks" yaml:"networks"`
}

// DefaultNetworks are the built-in presets.
func DefaultNetworks() map[int64]Network {
	return map[int64]Network{
		5: {
			Name:      "goerli",
			Link:      "0x326C977E6efc84E512bB9C30f76E30c160eD06FB",
			Oracle:    "0xB9756312523826A566e222a34793E414A81c88E1",
			JobID:     "14f849816fac426abda2992cbf47d2cd",
			Payment:   "100000000000000000",
			SignUpURL: "https://wallet.everest.org",
		},
		137: {
			Name:      "polygon",
			Link:      "0xb0897686c545045aFc77CF20eC7A532E3120E0F1",
			Oracle:    "0x97b6Df5808b7f46Ee2C0e482E1B785CE3A2BC8BF",
			JobID:     "827352c4d8684571b4605f9022853ddf",
			Payment:   "10000000000000000",
			SignUpURL: "https://wallet.everest.org",
		},
	}
}

// LoadNetworks returns the built-in presets merged with the presets in path.
// Entries in the file replace built-in entries field by field. An empty path
// returns the built-ins.
func LoadNetworks(path string) (map[int64]Network, error) {
	networks := DefaultNetworks()
	if path == "" {
		return networks, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network file: %w", err)
	}

	var file networkFile
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported network file extension %q", ext)
	}

	for key, n := range file.Networks {
		chainID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("network key %q is not a chain id", key)
		}
		networks[chainID] = merge(networks[chainID], n)
	}
	return networks, nil
}

// ResolveNetwork picks the preset for the configured chain and applies env
// overrides from OracleConfig.
func (c *Config) ResolveNetwork() (Network, error) {
	networks, err := LoadNetworks(c.Oracle.NetworkFile)
	if err != nil {
		return Network{}, err
	}

	n := merge(networks[c.Chain.ChainID], Network{
		Link:      c.Oracle.Link,
		Oracle:    c.Oracle.Address,
		JobID:     c.Oracle.JobID,
		Payment:   c.Oracle.Payment,
		SignUpURL: c.Oracle.SignUpURL,
	})
	if n.Link == "" || n.Oracle == "" || n.JobID == "" || n.Payment == "" {
		return Network{}, fmt.Errorf("no complete network preset for chain %d: set LINK_ADDRESS, ORACLE_ADDRESS, ORACLE_JOB_ID and ORACLE_PAYMENT", c.Chain.ChainID)
	}
	if n.Name == "" {
		n.Name = strconv.FormatInt(c.Chain.ChainID, 10)
	}
	return n, nil
}

func merge(base, override Network) Network {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Link != "" {
		base.Link = override.Link
	}
	if override.Oracle != "" {
		base.Oracle = override.Oracle
	}
	if override.JobID != "" {
		base.JobID = override.JobID
	}
	if override.Payment != "" {
		base.Payment = override.Payment
	}
	if override.SignUpURL != "" {
		base.SignUpURL = override.SignUpURL
	}
	return base
}
