package mergetree

import (
	"testing"
)

func TestPartName_String(t *testing.T) {
	n := PartName{PartitionID: "202506", MinBlock: 3, MaxBlock: 7, Level: 2}
	if n.String() != "202506_3_7_2" {
		t.Errorf("expected 202506_3_7_2, got %q", n.String())
	}
	if n.TempDirName() != "tmp_202506_3_7_2" {
		t.Errorf("expected tmp_202506_3_7_2, got %q", n.TempDirName())
	}
}

func TestParsePartName(t *testing.T) {
	n, err := ParsePartName("202506_3_7_2")
	if err != nil {
		t.Fatalf("ParsePartName failed: %v", err)
	}
	want := PartName{PartitionID: "202506", MinBlock: 3, MaxBlock: 7, Level: 2}
	if n != want {
		t.Errorf("expected %+v, got %+v", want, n)
	}

	// A hashed partition id never contains '_', but parse from the right
	// anyway so numeric-looking ids stay unambiguous
	n, err = ParsePartName("all_1_1_0")
	if err != nil {
		t.Fatalf("ParsePartName failed: %v", err)
	}
	if n.PartitionID != "all" || n.MinBlock != 1 || n.MaxBlock != 1 || n.Level != 0 {
		t.Errorf("bad parse: %+v", n)
	}
}

func TestParsePartName_Rejects(t *testing.T) {
	cases := []string{
		"",
		"all_1_1",       // too few fields
		"all_2_1_0",     // max below min
		"all_x_1_0",     // bad min
		"all_1_y_0",     // bad max
		"all_1_1_z",     // bad level
		"_1_1_0",        // empty partition id
		"all_1_1_0_junk",
	}
	for _, s := range cases {
		if _, err := ParsePartName(s); err == nil {
			t.Errorf("expected parse error for %q", s)
		}
	}
}

func TestPartStateString(t *testing.T) {
	states := map[PartState]string{
		PartTemporary: "Temporary",
		PartActive:    "Active",
		PartOutdated:  "Outdated",
		PartDeleting:  "Deleting",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}

func TestColumnsFile_RoundTrip(t *testing.T) {
	cols := []ColumnDef{
		{Name: "ts", Type: TypeDateTime},
		{Name: "host", Type: TypeString},
		{Name: "value", Type: TypeFloat64},
	}

	data := renderColumnsFile(cols)
	want := "columns format version: 1\n3 columns:\n`ts` DateTime\n`host` String\n`value` Float64\n"
	if string(data) != want {
		t.Errorf("expected %q, got %q", want, data)
	}

	parsed, err := parseColumnsFile(data)
	if err != nil {
		t.Fatalf("parseColumnsFile failed: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(parsed))
	}
	for i := range cols {
		if parsed[i] != cols[i] {
			t.Errorf("column %d: expected %+v, got %+v", i, cols[i], parsed[i])
		}
	}
}

func TestParseColumnsFile_Rejects(t *testing.T) {
	cases := []string{
		"",
		"columns format version: 2\n0 columns:\n",
		"columns format version: 1\nnope\n",
		"columns format version: 1\n1 columns:\nts DateTime\n",
		"columns format version: 1\n1 columns:\n`ts` Int32\n",
		"columns format version: 1\n2 columns:\n`ts` DateTime\n",
	}
	for _, data := range cases {
		if _, err := parseColumnsFile([]byte(data)); err == nil {
			t.Errorf("expected parse error for %q", data)
		}
	}
}

func TestPart_SerializationOf(t *testing.T) {
	p := &Part{}
	if p.SerializationOf("x") != SerializationDefault {
		t.Error("expected Default when no decisions are recorded")
	}
	p.Serializations = map[string]SerializationKind{"x": SerializationSparse}
	if p.SerializationOf("x") != SerializationSparse {
		t.Error("expected recorded Sparse decision")
	}
	if p.SerializationOf("y") != SerializationDefault {
		t.Error("expected Default for unknown column")
	}
}
