package config

import (
	"fmt"
	"time"
)

// Config is the full ingest node configuration, one block per
// subsystem plus the table definitions this node serves.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tables  []TableConfig `mapstructure:"tables"`
}

// ServerConfig sets where the HTTP API listens.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	HTTPPort int    `mapstructure:"http_port"`
}

// StorageConfig locates the data directory and carries the
// part-writing settings shared by all tables.
type StorageConfig struct {
	NodeID    string          `mapstructure:"node_id"`
	DataDir   string          `mapstructure:"data_dir"`
	MergeTree MergeTreeConfig `mapstructure:"merge_tree"`
}

// MergeTreeConfig holds the part-writing settings shared by all tables.
type MergeTreeConfig struct {
	IndexGranularity      int     `mapstructure:"index_granularity"`       // rows per granule
	IndexGranularityBytes int     `mapstructure:"index_granularity_bytes"` // byte budget per granule; 0 disables adaptive granularity
	MinCompressBlockSize  int     `mapstructure:"min_compress_block_size"` // frame cut threshold at granule boundaries
	MaxCompressBlockSize  int     `mapstructure:"max_compress_block_size"` // hard frame size cap
	DefaultCodec          string  `mapstructure:"default_codec"`           // codec expression, e.g. CODEC(LZ4), CODEC(ZSTD(3))
	RatioForSparse        float64 `mapstructure:"ratio_of_defaults_for_sparse"`
	FsyncAfterWrite       bool    `mapstructure:"fsync_after_write"`        // fsync every part file before commit
	FsyncPartDirectory    bool    `mapstructure:"fsync_part_directory"`     // fsync the part directory after rename
	AssignPartUUIDs       bool    `mapstructure:"assign_part_uuids"`        // write uuid.txt into new parts
	VerifyChecksumsOnLoad bool    `mapstructure:"verify_checksums_on_load"` // full re-hash during startup scan
}

// TableConfig defines one table served by this node.
type TableConfig struct {
	Name        string            `mapstructure:"name"`
	Columns     []ColumnConfig    `mapstructure:"columns"`
	OrderBy     []string          `mapstructure:"order_by"`
	PartitionBy *PartitionConfig  `mapstructure:"partition_by"`
	SkipIndexes []SkipIndexConfig `mapstructure:"skip_indexes"`
	TTL         *TTLConfig        `mapstructure:"ttl"` // table-level row expiry
}

// ColumnConfig defines one column of a table.
type ColumnConfig struct {
	Name string     `mapstructure:"name"`
	Type string     `mapstructure:"type"` // Int64, UInt64, Float64, String, DateTime, Bool
	TTL  *TTLConfig `mapstructure:"ttl"`  // column-level expiry
}

// PartitionConfig defines the partitioning expression of a table.
type PartitionConfig struct {
	Column    string `mapstructure:"column"`
	Transform string `mapstructure:"transform"` // identity, month, day, modulo
	Modulo    uint64 `mapstructure:"modulo"`    // bucket count for the modulo transform
}

// SkipIndexConfig defines one data-skipping index.
type SkipIndexConfig struct {
	Name              string  `mapstructure:"name"`
	Type              string  `mapstructure:"type"` // minmax, bloom_filter
	Column            string  `mapstructure:"column"`
	Granularity       int     `mapstructure:"granularity"`         // granules per summary row
	FalsePositiveRate float64 `mapstructure:"false_positive_rate"` // bloom_filter only
}

// TTLConfig defines a TTL rule: rows expire Period after the named
// DateTime column's value.
type TTLConfig struct {
	Column string        `mapstructure:"column"`
	Period time.Duration `mapstructure:"period"`
}

// EtcdConfig connects the node to the cluster registry.
type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// QueueConfig selects and connects the message queue backend.
type QueueConfig struct {
	Type     string `mapstructure:"type"` // nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	PublishEvents  bool `mapstructure:"publish_events"`  // publish part lifecycle events
	ConsumeInserts bool `mapstructure:"consume_inserts"` // subscribe to ingest subjects

	// Redis backend only.
	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`   // stream key prefix, default "mergetree"
	RedisGroup    string `mapstructure:"redis_group"`    // consumer group, default "mergetree-ingest"
	RedisConsumer string `mapstructure:"redis_consumer"` // consumer name, default hostname

	// Kafka backend only.
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// AuthConfig gates the versioned API behind API keys.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// LoggingConfig shapes the process log output.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr or a file path
}

// Validate checks every subsystem block and table definition.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Etcd.Validate(); err != nil {
		return fmt.Errorf("etcd config: %w", err)
	}
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	for i := range c.Tables {
		if err := c.Tables[i].Validate(); err != nil {
			return fmt.Errorf("table %q: %w", c.Tables[i].Name, err)
		}
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	return c.MergeTree.Validate()
}

func (c *MergeTreeConfig) Validate() error {
	if c.IndexGranularity < 1 {
		return fmt.Errorf("merge_tree.index_granularity must be positive")
	}
	if c.IndexGranularityBytes < 0 {
		return fmt.Errorf("merge_tree.index_granularity_bytes cannot be negative")
	}
	if c.MinCompressBlockSize < 1 || c.MaxCompressBlockSize < 1 {
		return fmt.Errorf("merge_tree compress block sizes must be positive")
	}
	if c.MinCompressBlockSize > c.MaxCompressBlockSize {
		return fmt.Errorf("merge_tree.min_compress_block_size cannot exceed max_compress_block_size")
	}
	if c.RatioForSparse < 0 || c.RatioForSparse > 1 {
		return fmt.Errorf("merge_tree.ratio_of_defaults_for_sparse must be within [0, 1]")
	}
	if c.DefaultCodec == "" {
		return fmt.Errorf("merge_tree.default_codec is required")
	}
	return nil
}

var columnTypes = map[string]bool{
	"Int64":    true,
	"UInt64":   true,
	"Float64":  true,
	"String":   true,
	"DateTime": true,
	"Bool":     true,
}

var partitionTransforms = map[string]bool{
	"identity": true,
	"month":    true,
	"day":      true,
	"modulo":   true,
}

var skipIndexTypes = map[string]bool{
	"minmax":       true,
	"bloom_filter": true,
}

// Validate checks the table definition for internal consistency:
// every referenced column must exist with a usable type.
func (c *TableConfig) Validate() error {
	if !isIdentifier(c.Name) {
		return fmt.Errorf("invalid table name %q", c.Name)
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}

	cols := make(map[string]string, len(c.Columns))
	for _, col := range c.Columns {
		if !isIdentifier(col.Name) {
			return fmt.Errorf("invalid column name %q", col.Name)
		}
		if !columnTypes[col.Type] {
			return fmt.Errorf("column %q: unknown type %q", col.Name, col.Type)
		}
		if _, dup := cols[col.Name]; dup {
			return fmt.Errorf("duplicate column %q", col.Name)
		}
		cols[col.Name] = col.Type

		if col.TTL != nil {
			if err := c.validateTTL(cols, col.TTL); err != nil {
				return fmt.Errorf("column %q ttl: %w", col.Name, err)
			}
		}
	}

	if len(c.OrderBy) == 0 {
		return fmt.Errorf("order_by is required")
	}
	for _, name := range c.OrderBy {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("order_by references unknown column %q", name)
		}
	}

	if c.PartitionBy != nil {
		if _, ok := cols[c.PartitionBy.Column]; !ok {
			return fmt.Errorf("partition_by references unknown column %q", c.PartitionBy.Column)
		}
		if !partitionTransforms[c.PartitionBy.Transform] {
			return fmt.Errorf("unknown partition transform %q", c.PartitionBy.Transform)
		}
		if c.PartitionBy.Transform == "modulo" && c.PartitionBy.Modulo == 0 {
			return fmt.Errorf("partition_by.modulo must be positive for the modulo transform")
		}
		if t := c.PartitionBy.Transform; (t == "month" || t == "day") && cols[c.PartitionBy.Column] != "DateTime" {
			return fmt.Errorf("partition transform %q requires a DateTime column", t)
		}
	}

	seen := make(map[string]bool, len(c.SkipIndexes))
	for _, idx := range c.SkipIndexes {
		if !isIdentifier(idx.Name) {
			return fmt.Errorf("invalid skip index name %q", idx.Name)
		}
		if seen[idx.Name] {
			return fmt.Errorf("duplicate skip index %q", idx.Name)
		}
		seen[idx.Name] = true
		if !skipIndexTypes[idx.Type] {
			return fmt.Errorf("skip index %q: unknown type %q", idx.Name, idx.Type)
		}
		if _, ok := cols[idx.Column]; !ok {
			return fmt.Errorf("skip index %q references unknown column %q", idx.Name, idx.Column)
		}
		if idx.Granularity < 0 {
			return fmt.Errorf("skip index %q: granularity cannot be negative", idx.Name)
		}
	}

	if c.TTL != nil {
		if err := c.validateTTL(cols, c.TTL); err != nil {
			return fmt.Errorf("ttl: %w", err)
		}
	}
	return nil
}

func (c *TableConfig) validateTTL(cols map[string]string, ttl *TTLConfig) error {
	typ, ok := cols[ttl.Column]
	if !ok {
		return fmt.Errorf("references unknown column %q", ttl.Column)
	}
	if typ != "DateTime" {
		return fmt.Errorf("column %q must be DateTime", ttl.Column)
	}
	if ttl.Period <= 0 {
		return fmt.Errorf("period must be positive")
	}
	return nil
}

func (c *EtcdConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required when etcd is enabled")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}
	return nil
}

func (c *QueueConfig) Validate() error {
	switch c.Type {
	case "", "nats", "redis", "kafka", "memory":
		return nil
	default:
		return fmt.Errorf("unsupported queue type: %s", c.Type)
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	switch c.Format {
	case "json", "console", "pretty":
		return nil
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
}

// isIdentifier reports whether s is a valid table/column/index name:
// ASCII letters, digits and underscores, not starting with a digit.
// Names become file path components, so anything else is rejected.
func isIdentifier(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
