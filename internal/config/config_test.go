package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validTable() TableConfig {
	return TableConfig{
		Name: "events",
		Columns: []ColumnConfig{
			{Name: "ts", Type: "DateTime"},
			{Name: "id", Type: "UInt64"},
			{Name: "value", Type: "Float64"},
		},
		OrderBy: []string{"id", "ts"},
		PartitionBy: &PartitionConfig{
			Column:    "ts",
			Transform: "month",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "default config should be valid",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name: "invalid http port",
			mutate: func(cfg *Config) {
				cfg.Server.HTTPPort = 0
			},
			wantErr: true,
		},
		{
			name: "missing data dir",
			mutate: func(cfg *Config) {
				cfg.Storage.DataDir = ""
			},
			wantErr: true,
		},
		{
			name: "zero index granularity",
			mutate: func(cfg *Config) {
				cfg.Storage.MergeTree.IndexGranularity = 0
			},
			wantErr: true,
		},
		{
			name: "min compress block above max",
			mutate: func(cfg *Config) {
				cfg.Storage.MergeTree.MinCompressBlockSize = 2 << 20
			},
			wantErr: true,
		},
		{
			name: "sparse ratio out of range",
			mutate: func(cfg *Config) {
				cfg.Storage.MergeTree.RatioForSparse = 1.5
			},
			wantErr: true,
		},
		{
			name: "missing default codec",
			mutate: func(cfg *Config) {
				cfg.Storage.MergeTree.DefaultCodec = ""
			},
			wantErr: true,
		},
		{
			name: "etcd enabled without endpoints",
			mutate: func(cfg *Config) {
				cfg.Etcd.Enabled = true
				cfg.Etcd.Endpoints = nil
			},
			wantErr: true,
		},
		{
			name: "unsupported queue type",
			mutate: func(cfg *Config) {
				cfg.Queue.Type = "rabbitmq"
			},
			wantErr: true,
		},
		{
			name: "invalid logging level",
			mutate: func(cfg *Config) {
				cfg.Logging.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "valid table",
			mutate: func(cfg *Config) {
				cfg.Tables = []TableConfig{validTable()}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(tbl *TableConfig)
		wantErr bool
	}{
		{
			name:    "valid table",
			mutate:  func(tbl *TableConfig) {},
			wantErr: false,
		},
		{
			name: "bad table name",
			mutate: func(tbl *TableConfig) {
				tbl.Name = "ev/il"
			},
			wantErr: true,
		},
		{
			name: "no columns",
			mutate: func(tbl *TableConfig) {
				tbl.Columns = nil
			},
			wantErr: true,
		},
		{
			name: "unknown column type",
			mutate: func(tbl *TableConfig) {
				tbl.Columns[0].Type = "Decimal"
			},
			wantErr: true,
		},
		{
			name: "duplicate column",
			mutate: func(tbl *TableConfig) {
				tbl.Columns = append(tbl.Columns, ColumnConfig{Name: "id", Type: "UInt64"})
			},
			wantErr: true,
		},
		{
			name: "order_by references unknown column",
			mutate: func(tbl *TableConfig) {
				tbl.OrderBy = []string{"missing"}
			},
			wantErr: true,
		},
		{
			name: "empty order_by",
			mutate: func(tbl *TableConfig) {
				tbl.OrderBy = nil
			},
			wantErr: true,
		},
		{
			name: "month transform on non-DateTime column",
			mutate: func(tbl *TableConfig) {
				tbl.PartitionBy = &PartitionConfig{Column: "id", Transform: "month"}
			},
			wantErr: true,
		},
		{
			name: "modulo transform without bucket count",
			mutate: func(tbl *TableConfig) {
				tbl.PartitionBy = &PartitionConfig{Column: "id", Transform: "modulo"}
			},
			wantErr: true,
		},
		{
			name: "modulo transform with buckets",
			mutate: func(tbl *TableConfig) {
				tbl.PartitionBy = &PartitionConfig{Column: "id", Transform: "modulo", Modulo: 16}
			},
			wantErr: false,
		},
		{
			name: "skip index on unknown column",
			mutate: func(tbl *TableConfig) {
				tbl.SkipIndexes = []SkipIndexConfig{{Name: "v_idx", Type: "minmax", Column: "missing"}}
			},
			wantErr: true,
		},
		{
			name: "unknown skip index type",
			mutate: func(tbl *TableConfig) {
				tbl.SkipIndexes = []SkipIndexConfig{{Name: "v_idx", Type: "hyperloglog", Column: "value"}}
			},
			wantErr: true,
		},
		{
			name: "bloom filter skip index",
			mutate: func(tbl *TableConfig) {
				tbl.SkipIndexes = []SkipIndexConfig{{Name: "v_idx", Type: "bloom_filter", Column: "value"}}
			},
			wantErr: false,
		},
		{
			name: "ttl on non-DateTime column",
			mutate: func(tbl *TableConfig) {
				tbl.TTL = &TTLConfig{Column: "id", Period: time.Hour}
			},
			wantErr: true,
		},
		{
			name: "ttl without period",
			mutate: func(tbl *TableConfig) {
				tbl.TTL = &TTLConfig{Column: "ts"}
			},
			wantErr: true,
		},
		{
			name: "valid table ttl",
			mutate: func(tbl *TableConfig) {
				tbl.TTL = &TTLConfig{Column: "ts", Period: 30 * 24 * time.Hour}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := validTable()
			tt.mutate(&tbl)
			err := tbl.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("TableConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPPort != 6440 {
		t.Errorf("expected HTTPPort 6440, got %d", cfg.Server.HTTPPort)
	}

	if cfg.Storage.MergeTree.IndexGranularity != 8192 {
		t.Errorf("expected index granularity 8192, got %d", cfg.Storage.MergeTree.IndexGranularity)
	}

	if cfg.Storage.MergeTree.DefaultCodec != "CODEC(LZ4)" {
		t.Errorf("expected default codec CODEC(LZ4), got %q", cfg.Storage.MergeTree.DefaultCodec)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  host: 127.0.0.1
  http_port: 7000
storage:
  node_id: node-a
  data_dir: ` + filepath.Join(dir, "data") + `
logging:
  level: debug
  format: console
tables:
  - name: events
    columns:
      - name: ts
        type: DateTime
      - name: id
        type: UInt64
    order_by: [id, ts]
    partition_by:
      column: ts
      transform: month
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.HTTPPort != 7000 {
		t.Errorf("expected http_port 7000, got %d", cfg.Server.HTTPPort)
	}

	if len(cfg.Tables) != 1 || cfg.Tables[0].Name != "events" {
		t.Fatalf("expected one table 'events', got %+v", cfg.Tables)
	}

	if cfg.Tables[0].PartitionBy == nil || cfg.Tables[0].PartitionBy.Transform != "month" {
		t.Errorf("expected month partition transform, got %+v", cfg.Tables[0].PartitionBy)
	}

	// Defaults fill in what the file omits
	if cfg.Storage.MergeTree.IndexGranularity != 8192 {
		t.Errorf("expected default granularity, got %d", cfg.Storage.MergeTree.IndexGranularity)
	}
}

func TestServerAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 9999

	if got := cfg.ServerAddress(); got != "127.0.0.1:9999" {
		t.Errorf("expected 127.0.0.1:9999, got %s", got)
	}
}

func TestTableLookup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tables = []TableConfig{validTable()}

	tbl, ok := cfg.Table("events")
	if !ok || tbl.Name != "events" {
		t.Fatalf("expected to find table events, got %+v found=%v", tbl, ok)
	}
	if _, ok := cfg.Table("missing"); ok {
		t.Error("expected lookup miss for unknown table")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MERGETREE_SERVER_HTTP_PORT", "7777")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPPort != 7777 {
		t.Errorf("expected env override port 7777, got %d", cfg.Server.HTTPPort)
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: verbose\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown logging level")
	}
}
