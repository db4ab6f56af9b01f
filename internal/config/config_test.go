package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "api-key", cfg.Auth.Type)
	assert.Equal(t, int64(5), cfg.Chain.ChainID)
	assert.Equal(t, "ledger", cfg.Chain.TokenBackend)
	assert.Equal(t, "local", cfg.Oracle.Dispatcher)
	assert.Equal(t, 120, cfg.RateLimit.CallerRequestsPerMin)
	assert.Equal(t, 20, cfg.RateLimit.CallerBurstSize)
	assert.Equal(t, 5*time.Minute, cfg.Requests.ExpirationWindow)
	assert.Equal(t, 5*time.Minute, cfg.Oracle.CallbackMaxSkew)
	assert.Empty(t, cfg.Oracle.CallbackSecret)
	assert.False(t, cfg.Oracle.CallbackInsecure)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/revealer")
	t.Setenv("REQUEST_EXPIRATION_WINDOW", "90s")
	t.Setenv("CHAIN_ID", "137")
	t.Setenv("AUTH_TYPE", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, 90*time.Second, cfg.Requests.ExpirationWindow)
	assert.Equal(t, int64(137), cfg.Chain.ChainID)
	assert.Equal(t, "none", cfg.Auth.Type)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown storage", map[string]string{"STORAGE_TYPE": "mysql"}},
		{"unknown auth", map[string]string{"AUTH_TYPE": "oauth"}},
		{"erc20 without rpc", map[string]string{"TOKEN_BACKEND": "erc20"}},
		{"amqp dispatcher without url", map[string]string{"ORACLE_DISPATCHER": "amqp"}},
		{"amqp events without url", map[string]string{"AMQP_PUBLISH_EVENTS": "true"}},
		{"unknown dispatcher", map[string]string{"ORACLE_DISPATCHER": "carrier-pigeon"}},
		{"insecure callbacks with a secret", map[string]string{"ORACLE_CALLBACK_INSECURE": "true", "ORACLE_CALLBACK_SECRET": "s3cret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RPCSelectsERC20(t *testing.T) {
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("CONSUMER_PRIVATE_KEY", "0x01")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "erc20", cfg.Chain.TokenBackend)
}

func TestResolveNetwork_Presets(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	n, err := cfg.ResolveNetwork()
	require.NoError(t, err)
	assert.Equal(t, "goerli", n.Name)
	assert.Equal(t, "0xB9756312523826A566e222a34793E414A81c88E1", n.Oracle)
	assert.Equal(t, "100000000000000000", n.Payment)

	cfg.Chain.ChainID = 137
	n, err = cfg.ResolveNetwork()
	require.NoError(t, err)
	assert.Equal(t, "polygon", n.Name)
	assert.Equal(t, "827352c4d8684571b4605f9022853ddf", n.JobID)
}

func TestResolveNetwork_EnvOverride(t *testing.T) {
	t.Setenv("ORACLE_PAYMENT", "42")

	cfg, err := Load()
	require.NoError(t, err)

	n, err := cfg.ResolveNetwork()
	require.NoError(t, err)
	assert.Equal(t, "42", n.Payment)
	assert.Equal(t, "goerli", n.Name)
}

func TestResolveNetwork_UnknownChain(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Chain.ChainID = 31337

	_, err = cfg.ResolveNetwork()
	assert.Error(t, err)
}

func TestLoadNetworks_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	data := `
[networks.31337]
name = "hardhat"
link = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
oracle = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
job_id = "7223acbd01654282865b678924126013"
payment = "1"
sign_up_url = "https://everest.sign.up.mocked.org/"

[networks.5]
payment = "7"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	networks, err := LoadNetworks(path)
	require.NoError(t, err)

	assert.Equal(t, "hardhat", networks[31337].Name)
	assert.Equal(t, "7223acbd01654282865b678924126013", networks[31337].JobID)
	assert.Equal(t, "7", networks[5].Payment)
	assert.Equal(t, "goerli", networks[5].Name, "unset fields keep the built-in value")
	assert.Equal(t, "polygon", networks[137].Name)
}

func TestLoadNetworks_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	data := `
networks:
  "80001":
    name: mumbai
    link: "0x326C977E6efc84E512bB9C30f76E30c160eD06FB"
    oracle: "0x97b6Df5808b7f46Ee2C0e482E1B785CE3A2BC8BF"
    job_id: "827352c4d8684571b4605f9022853ddf"
    payment: "10000000000000000"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	networks, err := LoadNetworks(path)
	require.NoError(t, err)
	assert.Equal(t, "mumbai", networks[80001].Name)
}

func TestLoadNetworks_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadNetworks(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "networks.json")
	require.NoError(t, os.WriteFile(bad, []byte("{}"), 0o600))
	_, err = LoadNetworks(bad)
	assert.Error(t, err)

	badKey := filepath.Join(dir, "networks.yml")
	require.NoError(t, os.WriteFile(badKey, []byte("networks:\n  goerli:\n    payment: \"1\"\n"), 0o600))
	_, err = LoadNetworks(badKey)
	assert.Error(t, err)
}
