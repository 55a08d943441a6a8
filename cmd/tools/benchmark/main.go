package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyrixx/ClickHouse/internal/compression"
	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
)

// BenchmarkConfig shapes the synthetic workload.
type BenchmarkConfig struct {
	Dir         string
	Rows        int
	BatchSize   int
	Hosts       int
	Codec       string
	Granularity int
	Partition   string
	SparseRatio float64
	Span        time.Duration
	Fsync       bool
	Keep        bool
}

// Result aggregates one run's write totals and latency spread.
type Result struct {
	Rows        int
	Parts       int
	Bytes       uint64
	Duration    time.Duration
	RowsPerSec  float64
	MBPerSec    float64
	BatchCount  int
	AvgLatency  float64 // ms
	MinLatency  float64 // ms
	MaxLatency  float64 // ms
	P50Latency  float64 // ms
	P95Latency  float64 // ms
	BytesPerRow float64
}

func main() {
	config := BenchmarkConfig{}
	flag.StringVar(&config.Dir, "dir", "", "data directory (default: temp dir, removed afterwards)")
	flag.IntVar(&config.Rows, "rows", 1000000, "total synthetic rows to write")
	flag.IntVar(&config.BatchSize, "batch", 100000, "rows per insert batch")
	flag.IntVar(&config.Hosts, "hosts", 100, "distinct host values")
	flag.StringVar(&config.Codec, "codec", "CODEC(LZ4)", "compression codec expression")
	flag.IntVar(&config.Granularity, "granularity", 8192, "index granularity in rows")
	flag.StringVar(&config.Partition, "partition", "month", "partitioning: none or month")
	flag.Float64Var(&config.SparseRatio, "sparse", 0, "fraction of default values per numeric column")
	flag.DurationVar(&config.Span, "span", 24*time.Hour, "time range the synthetic timestamps cover")
	flag.BoolVar(&config.Fsync, "fsync", false, "fsync part files and directory on commit")
	flag.BoolVar(&config.Keep, "keep", false, "keep the data directory")
	flag.Parse()

	// Keep part-commit logging out of the measurement output
	logging.SetGlobal(logging.NewWithWriter(os.Stderr, zerolog.WarnLevel))

	cleanup := false
	if config.Dir == "" {
		dir, err := os.MkdirTemp("", "mergetree-bench-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create temp dir: %v\n", err)
			os.Exit(1)
		}
		config.Dir = dir
		cleanup = !config.Keep
	}

	fmt.Printf("=== MergeTree Write Benchmark ===\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Dir:         %s\n", config.Dir)
	fmt.Printf("  Rows:        %d\n", config.Rows)
	fmt.Printf("  Batch Size:  %d\n", config.BatchSize)
	fmt.Printf("  Hosts:       %d\n", config.Hosts)
	fmt.Printf("  Codec:       %s\n", config.Codec)
	fmt.Printf("  Granularity: %d\n", config.Granularity)
	fmt.Printf("  Partition:   %s\n", config.Partition)
	fmt.Printf("  Sparse:      %.2f\n", config.SparseRatio)
	fmt.Printf("  Span:        %s\n", config.Span)
	fmt.Printf("  Fsync:       %v\n", config.Fsync)
	fmt.Printf("\n")

	result, err := runBenchmark(config)
	if cleanup {
		_ = os.RemoveAll(config.Dir)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", err)
		os.Exit(1)
	}

	displayResult(result)
	if config.Keep || !cleanup {
		fmt.Printf("\nData kept in: %s\n", config.Dir)
	}
}

func runBenchmark(config BenchmarkConfig) (Result, error) {
	store, err := openStore(config)
	if err != nil {
		return Result{}, err
	}

	ctx := context.Background()
	base := time.Now().Add(-config.Span).Unix()
	spanSec := int64(config.Span / time.Second)
	if spanSec < 1 {
		spanSec = 1
	}

	var latencies []float64
	start := time.Now()

	written := 0
	for written < config.Rows {
		n := config.BatchSize
		if remaining := config.Rows - written; remaining < n {
			n = remaining
		}

		rows := generateRows(config, base, spanSec, written, n)

		batchStart := time.Now()
		if _, err := store.InsertRows(ctx, rows); err != nil {
			return Result{}, fmt.Errorf("insert batch at row %d: %w", written, err)
		}
		latencies = append(latencies, time.Since(batchStart).Seconds()*1000)

		written += n
		fmt.Printf("  %d / %d rows\r", written, config.Rows)
	}
	duration := time.Since(start)
	fmt.Printf("\n")

	parts, rows, bytes := store.Stats()
	result := Result{
		Rows:       int(rows),
		Parts:      parts,
		Bytes:      bytes,
		Duration:   duration,
		RowsPerSec: float64(written) / duration.Seconds(),
		MBPerSec:   float64(bytes) / (1024 * 1024) / duration.Seconds(),
		BatchCount: len(latencies),
	}
	if rows > 0 {
		result.BytesPerRow = float64(bytes) / float64(rows)
	}
	if len(latencies) > 0 {
		sort.Float64s(latencies)
		var sum float64
		for _, l := range latencies {
			sum += l
		}
		result.AvgLatency = sum / float64(len(latencies))
		result.MinLatency = latencies[0]
		result.MaxLatency = latencies[len(latencies)-1]
		result.P50Latency = percentile(latencies, 50)
		result.P95Latency = percentile(latencies, 95)
	}
	return result, nil
}

func openStore(config BenchmarkConfig) (*mergetree.Store, error) {
	d, err := disk.NewLocal(config.Dir)
	if err != nil {
		return nil, err
	}

	var partition *mergetree.PartitionExpr
	switch config.Partition {
	case "none", "":
	case "month":
		partition = &mergetree.PartitionExpr{Column: "ts", Transform: mergetree.TransformMonth}
	default:
		return nil, fmt.Errorf("unknown partitioning %q (want none or month)", config.Partition)
	}

	schema, err := mergetree.NewSchema(
		[]mergetree.ColumnDef{
			{Name: "ts", Type: mergetree.TypeDateTime},
			{Name: "host", Type: mergetree.TypeString},
			{Name: "value", Type: mergetree.TypeFloat64},
			{Name: "hits", Type: mergetree.TypeInt64},
		},
		[]string{"host", "ts"},
		partition, nil, nil,
	)
	if err != nil {
		return nil, err
	}

	codec, err := compression.ParseCodec(config.Codec)
	if err != nil {
		return nil, err
	}

	settings := mergetree.DefaultSettings()
	settings.IndexGranularity = config.Granularity
	settings.Codec = codec
	settings.FsyncAfterWrite = config.Fsync
	settings.FsyncPartDirectory = config.Fsync

	return mergetree.OpenStore(d, "bench", "bench", schema, settings)
}

func generateRows(config BenchmarkConfig, base, spanSec int64, offset, n int) []mergetree.Row {
	rows := make([]mergetree.Row, n)
	for i := 0; i < n; i++ {
		seq := int64(offset + i)
		row := mergetree.Row{
			"ts":   mergetree.DateTimeFromUnix(base + seq%spanSec),
			"host": mergetree.StringValue(fmt.Sprintf("host-%04d", int(seq)%config.Hosts)),
		}
		if rand.Float64() < config.SparseRatio {
			row["value"] = mergetree.Float64Value(0)
			row["hits"] = mergetree.Int64Value(0)
		} else {
			row["value"] = mergetree.Float64Value(rand.Float64() * 1000)
			row["hits"] = mergetree.Int64Value(rand.Int63n(10000))
		}
		rows[i] = row
	}
	return rows
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(float64(len(sorted)) * p / 100.0))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func displayResult(r Result) {
	fmt.Printf("=== Results ===\n")
	fmt.Printf("Rows Written:  %d\n", r.Rows)
	fmt.Printf("Parts:         %d\n", r.Parts)
	fmt.Printf("Bytes on Disk: %d (%.2f MB, %.1f bytes/row)\n",
		r.Bytes, float64(r.Bytes)/(1024*1024), r.BytesPerRow)
	fmt.Printf("Duration:      %s\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("Throughput:    %.0f rows/sec, %.2f MB/sec\n", r.RowsPerSec, r.MBPerSec)
	fmt.Printf("\nBatch Latency (ms, %d batches):\n", r.BatchCount)
	fmt.Printf("  Min:  %.2f\n", r.MinLatency)
	fmt.Printf("  Avg:  %.2f\n", r.AvgLatency)
	fmt.Printf("  P50:  %.2f\n", r.P50Latency)
	fmt.Printf("  P95:  %.2f\n", r.P95Latency)
	fmt.Printf("  Max:  %.2f\n", r.MaxLatency)
}
