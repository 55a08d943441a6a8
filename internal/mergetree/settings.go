package mergetree

import (
	"fmt"

	"github.com/lyrixx/ClickHouse/internal/compression"
	"github.com/lyrixx/ClickHouse/internal/config"
)

// Settings are the part-writing knobs shared by every table on a node.
type Settings struct {
	IndexGranularity      int
	IndexGranularityBytes int
	MinCompressBlockSize  int
	MaxCompressBlockSize  int
	Codec                 compression.Codec
	RatioForSparse        float64
	FsyncAfterWrite       bool
	FsyncPartDirectory    bool
	AssignPartUUIDs       bool
	VerifyChecksumsOnLoad bool
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		IndexGranularity:      8192,
		IndexGranularityBytes: 10 * 1024 * 1024,
		MinCompressBlockSize:  65536,
		MaxCompressBlockSize:  1048576,
		Codec:                 compression.DefaultCodec(),
		RatioForSparse:        0.9375,
	}
}

// SettingsFromConfig parses the merge tree section of the configuration.
func SettingsFromConfig(mc config.MergeTreeConfig) (Settings, error) {
	codec, err := compression.ParseCodec(mc.DefaultCodec)
	if err != nil {
		return Settings{}, fmt.Errorf("merge_tree.default_codec: %w", err)
	}

	return Settings{
		IndexGranularity:      mc.IndexGranularity,
		IndexGranularityBytes: mc.IndexGranularityBytes,
		MinCompressBlockSize:  mc.MinCompressBlockSize,
		MaxCompressBlockSize:  mc.MaxCompressBlockSize,
		Codec:                 codec,
		RatioForSparse:        mc.RatioForSparse,
		FsyncAfterWrite:       mc.FsyncAfterWrite,
		FsyncPartDirectory:    mc.FsyncPartDirectory,
		AssignPartUUIDs:       mc.AssignPartUUIDs,
		VerifyChecksumsOnLoad: mc.VerifyChecksumsOnLoad,
	}, nil
}
