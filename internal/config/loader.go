package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the node configuration. An explicit path must exist; with
// an empty path the usual locations are searched and a missing file
// falls back to defaults. Environment variables prefixed MERGETREE_
// override file values, with dots flattened to underscores
// (MERGETREE_SERVER_HTTP_PORT sets server.http_port).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/mergetree")
	}

	setDefaults(v)
	v.SetEnvPrefix("MERGETREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 6440)

	v.SetDefault("storage.node_id", "mergetree-default-node")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.merge_tree.index_granularity", 8192)
	v.SetDefault("storage.merge_tree.index_granularity_bytes", 10*1024*1024)
	v.SetDefault("storage.merge_tree.min_compress_block_size", 65536)
	v.SetDefault("storage.merge_tree.max_compress_block_size", 1048576)
	v.SetDefault("storage.merge_tree.default_codec", "CODEC(LZ4)")
	v.SetDefault("storage.merge_tree.ratio_of_defaults_for_sparse", 0.9375)

	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")

	v.SetDefault("queue.type", "nats")
	v.SetDefault("queue.url", "nats://localhost:4222")
	v.SetDefault("queue.publish_events", false)
	v.SetDefault("queue.consume_inserts", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// DefaultConfig materializes the same defaults Load starts from.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not unmarshal: %v", err))
	}
	return &cfg
}
