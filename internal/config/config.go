// Package config provides a reusable loader for driftmesh's gateway and
// storage-node configuration files and environment variables, grounded on
// the teacher's pkg/config: a single mapstructure-tagged struct mirroring
// the YAML layout, viper.AutomaticEnv for overrides, and a package-level
// Load entry point cobra commands call before wiring anything up.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the unified configuration for a driftmesh gateway or storage
// node process. It mirrors the structure of the YAML files under config/.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxShardsPerAS int      `mapstructure:"max_shards_per_as" json:"max_shards_per_as"`
		// IdentityPath is where this process's long-lived libp2p private
		// key is persisted (protobuf-encoded), generated on first run.
		IdentityPath string `mapstructure:"identity_path" json:"identity_path"`
	} `mapstructure:"network" json:"network"`

	Catalog struct {
		DSN string `mapstructure:"dsn" json:"dsn"`
	} `mapstructure:"catalog" json:"catalog"`

	StorageNode struct {
		DataDir       string   `mapstructure:"data_dir" json:"data_dir"`
		CapacityBytes uint64   `mapstructure:"capacity_bytes" json:"capacity_bytes"`
		BlockKeyHex   string   `mapstructure:"block_key_hex" json:"block_key_hex"`
		Allowlist     []string `mapstructure:"allowlist" json:"allowlist"`
	} `mapstructure:"storage_node" json:"storage_node"`

	Gateway struct {
		DataShards    int           `mapstructure:"data_shards" json:"data_shards"`
		ParityShards  int           `mapstructure:"parity_shards" json:"parity_shards"`
		QuorumDelta   int           `mapstructure:"quorum_delta" json:"quorum_delta"`
		BodyCapBytes  int64         `mapstructure:"body_cap_bytes" json:"body_cap_bytes"`
		GatewayKeyHex string        `mapstructure:"gateway_key_hex" json:"gateway_key_hex"`
		VoucherKeyHex string        `mapstructure:"voucher_key_hex" json:"voucher_key_hex"`
		VoucherTTL    time.Duration `mapstructure:"voucher_ttl" json:"voucher_ttl"`
		CacheSize     int           `mapstructure:"cache_size" json:"cache_size"`
		DecodeWorkers int64         `mapstructure:"decode_workers" json:"decode_workers"`
	} `mapstructure:"gateway" json:"gateway"`

	HTTP struct {
		ListenAddr  string `mapstructure:"listen_addr" json:"listen_addr"`
		BearerToken string `mapstructure:"bearer_token" json:"bearer_token"`
		CSRFKeyHex  string `mapstructure:"csrf_key_hex" json:"csrf_key_hex"`
	} `mapstructure:"http" json:"http"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"metrics" json:"metrics"`

	Reconstruct struct {
		// ShadowManifestAuthoritative is loaded from configuration (default
		// false), but no component reads it: Reconstruct always treats a
		// recovered shadow manifest as advisory, reinstalling a missing
		// catalog row and leaving an existing one unchanged.
		ShadowManifestAuthoritative bool `mapstructure:"shadow_manifest_authoritative" json:"shadow_manifest_authoritative"`
	} `mapstructure:"reconstruct" json:"reconstruct"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv, mirroring
// the teacher's package-level AppConfig convention.
var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.listen_addr", "/ip4/0.0.0.0/tcp/4001")
	v.SetDefault("network.max_shards_per_as", 0)
	v.SetDefault("network.identity_path", "identity.key")
	v.SetDefault("storage_node.data_dir", "storagenode.db")
	v.SetDefault("storage_node.capacity_bytes", uint64(100<<30))
	v.SetDefault("gateway.data_shards", 10)
	v.SetDefault("gateway.parity_shards", 10)
	v.SetDefault("gateway.quorum_delta", 4)
	v.SetDefault("gateway.body_cap_bytes", int64(500<<20))
	v.SetDefault("gateway.voucher_ttl", 15*time.Minute)
	v.SetDefault("gateway.cache_size", 256)
	v.SetDefault("gateway.decode_workers", int64(8))
	v.SetDefault("http.listen_addr", "127.0.0.1:8443")
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9090")
	v.SetDefault("reconstruct.shadow_manifest_authoritative", false)
	v.SetDefault("logging.level", "info")
}

// Load reads config/default.yaml (if present), merges config/<env>.yaml on
// top of it (if env is non-empty and the file exists), then applies
// DRIFTMESH_-prefixed environment variable overrides before unmarshalling
// into AppConfig. Unlike the teacher's Load, a missing config file is not
// fatal here: this module's binaries are expected to run from flags and
// environment variables alone in a minimal deployment, with YAML as an
// optional convenience rather than the mandatory genesis-style config a
// blockchain node needs.
func Load(env string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("default")
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("merge %s config: %w", env, err)
			}
		}
	}

	v.SetEnvPrefix("driftmesh")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DRIFTMESH_ENV environment
// variable to select the overlay file, mirroring the teacher's
// LoadFromEnv/SYNN_ENV convention. DRIFTMESH_ENV has to be read directly
// with os.Getenv: it picks which overlay file Load merges in, so it must be
// resolved before any viper instance (which Load only constructs internally)
// exists to read it from.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("DRIFTMESH_ENV"))
}

// BindFlags binds the subset of Config a server command line cares about to
// persistent flags on cmd, so a flag always wins over a config file value
// but a config file still wins over the hardcoded default.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.PersistentFlags().String("http-listen-addr", "", "HTTP gateway listen address")
	cmd.PersistentFlags().String("catalog-dsn", "", "Postgres catalog connection string")
	cmd.PersistentFlags().String("network-listen-addr", "", "libp2p multiaddr to listen on")
	_ = v.BindPFlag("http.listen_addr", cmd.PersistentFlags().Lookup("http-listen-addr"))
	_ = v.BindPFlag("catalog.dsn", cmd.PersistentFlags().Lookup("catalog-dsn"))
	_ = v.BindPFlag("network.listen_addr", cmd.PersistentFlags().Lookup("network-listen-addr"))
}
