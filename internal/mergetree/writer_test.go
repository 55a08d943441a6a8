package mergetree

import (
	"bytes"
	"path"
	"testing"
	"time"

	"github.com/lyrixx/ClickHouse/internal/disk"
)

// fixedSettings disables the byte budget so granule boundaries depend only on
// the row count.
func fixedSettings(granularity int) Settings {
	s := DefaultSettings()
	s.IndexGranularity = granularity
	s.IndexGranularityBytes = 0
	return s
}

// tsSchema is the smallest useful table: one DateTime column, sorted by it.
func tsSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema([]ColumnDef{{Name: "ts", Type: TypeDateTime}}, []string{"ts"}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return s
}

// logsSchema exercises every part artifact: month partitioning, a skip
// index and a table TTL.
func logsSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		[]ColumnDef{
			{Name: "ts", Type: TypeDateTime},
			{Name: "host", Type: TypeString},
			{Name: "value", Type: TypeFloat64},
			{Name: "debug", Type: TypeString},
		},
		[]string{"ts"},
		&PartitionExpr{Column: "ts", Transform: TransformMonth},
		[]SkipIndexDef{{Name: "value_mm", Type: SkipIndexMinMax, Column: "value", Granularity: 1}},
		[]TTLRule{{Column: "ts", Period: time.Hour}},
	)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return s
}

// logsBlock builds rows rows of June 2025 data starting at start seconds
// past 2025-06-15T00:00:00Z, sorted by ts. debug is default except on the
// first row when withDebug is set.
func logsBlock(t *testing.T, start int64, rows int, withDebug bool) *Block {
	t.Helper()
	base := int64(1749945600)

	ts := NewColumn("ts", TypeDateTime)
	host := NewColumn("host", TypeString)
	value := NewColumn("value", TypeFloat64)
	debug := NewColumn("debug", TypeString)
	for i := 0; i < rows; i++ {
		ts.appendRaw(DateTimeFromUnix(base + start + int64(i)))
		host.appendRaw(StringValue("web-" + string(rune('a'+i%3))))
		value.appendRaw(Float64Value(float64(i) * 1.5))
		if withDebug && i == 0 {
			debug.appendRaw(StringValue("trace"))
		} else {
			debug.AppendDefault()
		}
	}

	b, err := NewBlock(ts, host, value, debug)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}
	return b
}

func tsBlock(t *testing.T, first int64, rows int) *Block {
	t.Helper()
	ts := NewColumn("ts", TypeDateTime)
	for i := 0; i < rows; i++ {
		ts.appendRaw(DateTimeFromUnix(first + int64(i)))
	}
	b, err := NewBlock(ts)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}
	return b
}

func mustWritePart(t *testing.T, d disk.Disk, dir string, name PartName, schema *Schema, settings Settings, opts WriterOptions, blocks ...*Block) *Part {
	t.Helper()
	w, err := NewPartWriter(d, path.Join(dir, name.TempDirName()), name, schema, settings, opts)
	if err != nil {
		t.Fatalf("NewPartWriter failed: %v", err)
	}
	for _, b := range blocks {
		if err := w.WriteBlock(b); err != nil {
			t.Fatalf("WriteBlock failed: %v", err)
		}
	}
	fin, err := w.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	p, err := fin.FinalizeAndRename()
	if err != nil {
		t.Fatalf("FinalizeAndRename failed: %v", err)
	}
	return p
}

func TestPartWriter_GranulesSpanBlocks(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	name := PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}

	// 3 rows then 5 rows at granularity 4: the first granule crosses the
	// block boundary
	p := mustWritePart(t, d, "logs", name, schema, fixedSettings(4), WriterOptions{},
		tsBlock(t, 100, 3), tsBlock(t, 103, 5))

	if p.Dir != "logs/all_1_1_0" {
		t.Errorf("expected final dir logs/all_1_1_0, got %q", p.Dir)
	}
	if p.Rows != 8 {
		t.Errorf("expected 8 rows, got %d", p.Rows)
	}

	marksData, err := d.ReadFile("logs/all_1_1_0/ts.mrk2")
	if err != nil {
		t.Fatalf("ReadFile marks failed: %v", err)
	}
	marks, err := decodeMarks(marksData)
	if err != nil {
		t.Fatalf("decodeMarks failed: %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("expected 2 granules, got %d", len(marks))
	}
	for i, m := range marks {
		if m.Rows != 4 {
			t.Errorf("granule %d: expected 4 rows, got %d", i, m.Rows)
		}
	}

	entries, err := ReadPrimaryIndex(d, p, schema)
	if err != nil {
		t.Fatalf("ReadPrimaryIndex failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 index entries, got %d", len(entries))
	}
	if entries[0][0].Unix() != 100 || entries[1][0].Unix() != 104 {
		t.Errorf("expected index entries at ts 100 and 104, got %d and %d",
			entries[0][0].Unix(), entries[1][0].Unix())
	}

	countData, err := d.ReadFile("logs/all_1_1_0/count.txt")
	if err != nil {
		t.Fatalf("ReadFile count failed: %v", err)
	}
	if string(countData) != "8" {
		t.Errorf("expected count 8, got %q", countData)
	}
}

func TestPartWriter_ManifestCoversEveryFile(t *testing.T) {
	d := disk.NewMemory()
	schema := logsSchema(t)
	name := PartName{PartitionID: "202506", MinBlock: 1, MaxBlock: 1, Level: 0}

	p := mustWritePart(t, d, "logs", name, schema, fixedSettings(4), WriterOptions{},
		logsBlock(t, 0, 8, true))

	expected := []string{
		"columns.txt", "count.txt",
		"debug.bin", "debug.mrk2",
		"default_compression_codec.txt",
		"host.bin", "host.mrk2",
		"minmax_ts.idx", "partition.dat", "primary.idx",
		"skp_idx_value_mm.idx", "skp_idx_value_mm.mrk2",
		"ts.bin", "ts.mrk2", "ttl.txt",
		"value.bin", "value.mrk2",
	}
	got := p.Checksums.Files()
	if len(got) != len(expected) {
		t.Fatalf("expected %d manifest entries, got %d: %v", len(expected), len(got), got)
	}
	for i, want := range expected {
		if got[i] != want {
			t.Errorf("manifest entry %d: expected %s, got %s", i, want, got[i])
		}
	}

	// Every listed hash matches the bytes on disk
	if err := p.Checksums.Verify(d, p.Dir); err != nil {
		t.Fatalf("expected clean verify, got %v", err)
	}
	if p.BytesOnDisk != p.Checksums.TotalSize() {
		t.Errorf("expected BytesOnDisk %d, got %d", p.Checksums.TotalSize(), p.BytesOnDisk)
	}

	// The manifest itself exists on disk but is never listed
	if _, ok := p.Checksums.Entry(ChecksumsFileName); ok {
		t.Error("manifest must not list itself")
	}
	if !d.Exists(path.Join(p.Dir, ChecksumsFileName)) {
		t.Error("manifest file missing from part directory")
	}
}

func TestPartWriter_EmptyPart(t *testing.T) {
	d := disk.NewMemory()
	schema := logsSchema(t)
	name := PartName{PartitionID: "202506", MinBlock: 1, MaxBlock: 1, Level: 0}

	p := mustWritePart(t, d, "logs", name, schema, fixedSettings(4), WriterOptions{})

	if p.Rows != 0 {
		t.Errorf("expected 0 rows, got %d", p.Rows)
	}
	// No rows: partition, minmax and ttl metadata are all omitted
	for _, absent := range []string{PartitionFileName, "minmax_ts.idx", TTLFileName} {
		if _, ok := p.Checksums.Entry(absent); ok {
			t.Errorf("expected %s to be omitted from an empty part", absent)
		}
	}
	if p.MinMax != nil {
		t.Error("expected no minmax bounds on an empty part")
	}
	if p.TTL != nil {
		t.Error("expected no ttl info on an empty part")
	}
	// All columns stay: the all-default drop requires observed rows
	if len(p.Columns) != 4 {
		t.Errorf("expected 4 columns, got %d", len(p.Columns))
	}
	if err := p.Checksums.Verify(d, p.Dir); err != nil {
		t.Fatalf("expected clean verify, got %v", err)
	}

	countData, _ := d.ReadFile(path.Join(p.Dir, CountFileName))
	if string(countData) != "0" {
		t.Errorf("expected count 0, got %q", countData)
	}

	// An empty block is a no-op, not an error
	w, err := NewPartWriter(d, "logs/tmp_202506_2_2_0", PartName{PartitionID: "202506", MinBlock: 2, MaxBlock: 2, Level: 0}, schema, fixedSettings(4), WriterOptions{})
	if err != nil {
		t.Fatalf("NewPartWriter failed: %v", err)
	}
	defer w.Abort()
	if err := w.WriteBlock(logsBlock(t, 0, 0, false)); err != nil {
		t.Errorf("expected zero-row block to be a no-op, got %v", err)
	}
}

func TestPartWriter_PermutationMatchesPresorted(t *testing.T) {
	schema := tsSchema(t)
	name := PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}

	sorted := tsBlock(t, 100, 6)

	shuffled := NewColumn("ts", TypeDateTime)
	for _, v := range []int64{103, 100, 105, 102, 101, 104} {
		shuffled.appendRaw(DateTimeFromUnix(v))
	}
	blk, err := NewBlock(shuffled)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}
	perm, err := SortPermutation(blk, schema.SortKey)
	if err != nil {
		t.Fatalf("SortPermutation failed: %v", err)
	}

	dA := disk.NewMemory()
	pA := mustWritePart(t, dA, "logs", name, schema, fixedSettings(4), WriterOptions{}, sorted)

	dB := disk.NewMemory()
	wB, err := NewPartWriter(dB, "logs/"+name.TempDirName(), name, schema, fixedSettings(4), WriterOptions{})
	if err != nil {
		t.Fatalf("NewPartWriter failed: %v", err)
	}
	if err := wB.WriteBlockWithPermutation(blk, perm); err != nil {
		t.Fatalf("WriteBlockWithPermutation failed: %v", err)
	}
	fin, err := wB.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	pB, err := fin.FinalizeAndRename()
	if err != nil {
		t.Fatalf("FinalizeAndRename failed: %v", err)
	}

	// Applying the permutation on write produces byte-identical files
	if !bytes.Equal(pA.Checksums.Render(), pB.Checksums.Render()) {
		t.Errorf("manifests differ:\n%s\nvs\n%s", pA.Checksums.Render(), pB.Checksums.Render())
	}
}

func TestPartWriter_Deterministic(t *testing.T) {
	schema := logsSchema(t)
	name := PartName{PartitionID: "202506", MinBlock: 1, MaxBlock: 1, Level: 0}

	var manifests [][]byte
	for i := 0; i < 2; i++ {
		d := disk.NewMemory()
		p := mustWritePart(t, d, "logs", name, schema, fixedSettings(4), WriterOptions{},
			logsBlock(t, 0, 5, true), logsBlock(t, 5, 3, false))
		manifests = append(manifests, p.Checksums.Render())
	}
	if !bytes.Equal(manifests[0], manifests[1]) {
		t.Errorf("same input produced different manifests:\n%s\nvs\n%s", manifests[0], manifests[1])
	}
}

func TestPartWriter_RejectsBadPermutation(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	w, err := NewPartWriter(d, "logs/tmp_all_1_1_0", PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}, schema, fixedSettings(4), WriterOptions{})
	if err != nil {
		t.Fatalf("NewPartWriter failed: %v", err)
	}
	defer w.Abort()

	if err := w.WriteBlockWithPermutation(tsBlock(t, 0, 3), []int{0, 1}); !IsLogicError(err) {
		t.Errorf("expected logic error for short permutation, got %v", err)
	}
	if err := w.WriteBlockWithPermutation(tsBlock(t, 0, 3), []int{0, 1, 1}); !IsLogicError(err) {
		t.Errorf("expected logic error for duplicate entry, got %v", err)
	}
}

func TestPartWriter_UseAfterClose(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	w, err := NewPartWriter(d, "logs/tmp_all_1_1_0", PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}, schema, fixedSettings(4), WriterOptions{})
	if err != nil {
		t.Fatalf("NewPartWriter failed: %v", err)
	}
	if err := w.WriteBlock(tsBlock(t, 0, 2)); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := w.WriteBlock(tsBlock(t, 2, 2)); !IsLogicError(err) {
		t.Errorf("expected logic error writing after close, got %v", err)
	}
	if _, err := w.Close(); !IsLogicError(err) {
		t.Errorf("expected logic error closing twice, got %v", err)
	}
}

func TestPartWriter_RejectsPartitionSpan(t *testing.T) {
	d := disk.NewMemory()
	schema := logsSchema(t)
	w, err := NewPartWriter(d, "logs/tmp_202506_1_1_0", PartName{PartitionID: "202506", MinBlock: 1, MaxBlock: 1, Level: 0}, schema, fixedSettings(4), WriterOptions{})
	if err != nil {
		t.Fatalf("NewPartWriter failed: %v", err)
	}
	defer w.Abort()

	// One June row, one July row
	ts := NewColumn("ts", TypeDateTime)
	ts.appendRaw(DateTimeFromUnix(1749945600))
	ts.appendRaw(DateTimeFromUnix(1751328000))
	host := buildColumn(t, "host", TypeString, StringValue("a"), StringValue("b"))
	value := buildColumn(t, "value", TypeFloat64, Float64Value(1), Float64Value(2))
	debug := buildColumn(t, "debug", TypeString, StringValue(""), StringValue(""))
	blk, err := NewBlock(ts, host, value, debug)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	if err := w.WriteBlock(blk); !IsLogicError(err) {
		t.Errorf("expected logic error for partition-spanning block, got %v", err)
	}
}

func TestPartWriter_RejectsInvalidSettings(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	name := PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}

	bad := fixedSettings(0)
	if _, err := NewPartWriter(d, "logs/tmp_all_1_1_0", name, schema, bad, WriterOptions{}); !IsLogicError(err) {
		t.Errorf("expected logic error for zero granularity, got %v", err)
	}

	bad = fixedSettings(4)
	bad.MaxCompressBlockSize = bad.MinCompressBlockSize - 1
	if _, err := NewPartWriter(d, "logs/tmp_all_1_1_0", name, schema, bad, WriterOptions{}); !IsLogicError(err) {
		t.Errorf("expected logic error for inverted frame bounds, got %v", err)
	}
}

func TestPartWriter_AdaptiveGranularity(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	name := PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}

	// 8-byte rows against a 16-byte budget: granules of 2 rows
	settings := fixedSettings(8192)
	settings.IndexGranularityBytes = 16
	p := mustWritePart(t, d, "logs", name, schema, settings, WriterOptions{}, tsBlock(t, 100, 6))

	marksData, err := d.ReadFile(path.Join(p.Dir, "ts.mrk2"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	marks, err := decodeMarks(marksData)
	if err != nil {
		t.Fatalf("decodeMarks failed: %v", err)
	}
	if len(marks) != 3 {
		t.Fatalf("expected 3 granules, got %d", len(marks))
	}
	for i, m := range marks {
		if m.Rows != 2 {
			t.Errorf("granule %d: expected 2 rows, got %d", i, m.Rows)
		}
	}
}

func TestPartWriter_AdaptiveGranularityFloorsAtOne(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	name := PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}

	// Budget below one row still yields one-row granules
	settings := fixedSettings(8192)
	settings.IndexGranularityBytes = 4
	p := mustWritePart(t, d, "logs", name, schema, settings, WriterOptions{}, tsBlock(t, 100, 3))

	marksData, _ := d.ReadFile(path.Join(p.Dir, "ts.mrk2"))
	marks, err := decodeMarks(marksData)
	if err != nil {
		t.Fatalf("decodeMarks failed: %v", err)
	}
	if len(marks) != 3 {
		t.Errorf("expected 3 one-row granules, got %d", len(marks))
	}
}

func TestPartWriter_BlocksAreGranules(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	name := PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}

	opts := WriterOptions{BlocksAreGranules: true}
	p := mustWritePart(t, d, "logs", name, schema, fixedSettings(4), opts,
		tsBlock(t, 100, 3), tsBlock(t, 103, 5))

	marksData, _ := d.ReadFile(path.Join(p.Dir, "ts.mrk2"))
	marks, err := decodeMarks(marksData)
	if err != nil {
		t.Fatalf("decodeMarks failed: %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("expected one granule per block, got %d granules", len(marks))
	}
	if marks[0].Rows != 3 || marks[1].Rows != 5 {
		t.Errorf("expected granules of 3 and 5 rows, got %d and %d", marks[0].Rows, marks[1].Rows)
	}
}

func TestPartWriter_AbortRemovesDirectory(t *testing.T) {
	d := disk.NewMemory()
	schema := tsSchema(t)
	dir := "logs/tmp_all_1_1_0"
	w, err := NewPartWriter(d, dir, PartName{PartitionID: "all", MinBlock: 1, MaxBlock: 1, Level: 0}, schema, fixedSettings(4), WriterOptions{})
	if err != nil {
		t.Fatalf("NewPartWriter failed: %v", err)
	}
	if err := w.WriteBlock(tsBlock(t, 100, 3)); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}

	w.Abort()
	if d.Exists(dir) {
		t.Error("expected aborted part directory to be removed")
	}
}
