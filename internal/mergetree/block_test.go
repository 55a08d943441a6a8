package mergetree

import (
	"testing"
)

func buildColumn(t *testing.T, name string, ct ColumnType, values ...Value) *Column {
	t.Helper()
	col := NewColumn(name, ct)
	for _, v := range values {
		if err := col.Append(v); err != nil {
			t.Fatalf("Append to %q failed: %v", name, err)
		}
	}
	return col
}

func TestColumn_AppendTypeMismatch(t *testing.T) {
	col := NewColumn("v", TypeInt64)
	if err := col.Append(StringValue("oops")); err == nil {
		t.Error("expected error appending String to Int64 column")
	}
}

func TestColumn_CountDefaults(t *testing.T) {
	col := buildColumn(t, "v", TypeInt64,
		Int64Value(0), Int64Value(5), Int64Value(0), Int64Value(0))
	if n := col.countDefaults(); n != 3 {
		t.Errorf("expected 3 defaults, got %d", n)
	}
}

func TestNewBlock_Validation(t *testing.T) {
	a := buildColumn(t, "a", TypeInt64, Int64Value(1), Int64Value(2))
	b := buildColumn(t, "b", TypeString, StringValue("x"))

	if _, err := NewBlock(a, b); err == nil {
		t.Error("expected error for mismatched column lengths")
	}
	if _, err := NewBlock(); err == nil {
		t.Error("expected error for empty block")
	}

	dup := buildColumn(t, "a", TypeString, StringValue("x"), StringValue("y"))
	if _, err := NewBlock(a, dup); err == nil {
		t.Error("expected error for duplicate column name")
	}
}

func TestBlock_Lookup(t *testing.T) {
	a := buildColumn(t, "a", TypeInt64, Int64Value(1))
	b := buildColumn(t, "b", TypeString, StringValue("x"))
	blk, err := NewBlock(a, b)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	if blk.Rows() != 1 {
		t.Errorf("expected 1 row, got %d", blk.Rows())
	}
	col, ok := blk.Column("b")
	if !ok || col.Name != "b" {
		t.Errorf("expected column b, got %v (%v)", col, ok)
	}
	if _, ok := blk.Column("missing"); ok {
		t.Error("expected lookup of unknown column to fail")
	}
}

func TestValidatePermutation(t *testing.T) {
	if err := validatePermutation(nil, 5); err != nil {
		t.Errorf("expected nil permutation to pass, got %v", err)
	}
	if err := validatePermutation([]int{2, 0, 1}, 3); err != nil {
		t.Errorf("expected valid permutation to pass, got %v", err)
	}

	if err := validatePermutation([]int{0, 1}, 3); !IsLogicError(err) {
		t.Errorf("expected logic error for short permutation, got %v", err)
	}
	if err := validatePermutation([]int{0, 3, 1}, 3); !IsLogicError(err) {
		t.Errorf("expected logic error for out-of-range entry, got %v", err)
	}
	if err := validatePermutation([]int{0, 1, 1}, 3); !IsLogicError(err) {
		t.Errorf("expected logic error for repeated entry, got %v", err)
	}
}

func TestSortPermutation(t *testing.T) {
	ts := buildColumn(t, "ts", TypeInt64,
		Int64Value(30), Int64Value(10), Int64Value(20), Int64Value(10))
	id := buildColumn(t, "id", TypeUInt64,
		UInt64Value(1), UInt64Value(2), UInt64Value(3), UInt64Value(1))
	blk, err := NewBlock(ts, id)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	perm, err := SortPermutation(blk, []string{"ts", "id"})
	if err != nil {
		t.Fatalf("SortPermutation failed: %v", err)
	}
	expected := []int{3, 1, 2, 0}
	if len(perm) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, perm)
	}
	for i := range expected {
		if perm[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, perm)
		}
	}
}

func TestSortPermutation_AlreadySorted(t *testing.T) {
	ts := buildColumn(t, "ts", TypeInt64, Int64Value(1), Int64Value(2), Int64Value(3))
	blk, err := NewBlock(ts)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	perm, err := SortPermutation(blk, []string{"ts"})
	if err != nil {
		t.Fatalf("SortPermutation failed: %v", err)
	}
	if perm != nil {
		t.Errorf("expected nil permutation for sorted block, got %v", perm)
	}
}

func TestSortPermutation_Stable(t *testing.T) {
	// Equal keys keep their input order
	ts := buildColumn(t, "ts", TypeInt64,
		Int64Value(5), Int64Value(5), Int64Value(5), Int64Value(1))
	blk, err := NewBlock(ts)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	perm, err := SortPermutation(blk, []string{"ts"})
	if err != nil {
		t.Fatalf("SortPermutation failed: %v", err)
	}
	expected := []int{3, 0, 1, 2}
	for i := range expected {
		if perm[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, perm)
		}
	}
}
