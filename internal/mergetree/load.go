package mergetree

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lyrixx/ClickHouse/internal/compression"
	"github.com/lyrixx/ClickHouse/internal/disk"
)

// LoadPart reads a committed part back from its directory. The checksums
// manifest is the source of truth: a missing or unreadable manifest makes
// the part incomplete, and only files the manifest lists are consulted.
//
// With a nil schema the part loads in metadata-only mode: column types come
// from columns.txt alone and the partition value and minmax bounds stay
// undecoded (their binary encodings carry no type tag). verifyHashes selects
// the full re-hash over the default presence-and-size check.
func LoadPart(d disk.Disk, dir string, schema *Schema, verifyHashes bool) (*Part, error) {
	base := path.Base(dir)
	if strings.HasPrefix(base, TempPartPrefix) {
		return nil, fmt.Errorf("part %s: temporary directory never committed", base)
	}
	name, err := ParsePartName(base)
	if err != nil {
		return nil, err
	}

	manifest, err := d.ReadFile(path.Join(dir, ChecksumsFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: part %s: %v", ErrIncompletePart, base, err)
	}
	sums, err := ParseChecksums(manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: part %s: %v", ErrIncompletePart, base, err)
	}

	if verifyHashes {
		err = sums.Verify(d, dir)
	} else {
		err = sums.VerifySizes(d, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", base, err)
	}

	part := &Part{
		Name:        name,
		Dir:         dir,
		Checksums:   sums,
		BytesOnDisk: sums.TotalSize(),
	}

	countData, err := d.ReadFile(path.Join(dir, CountFileName))
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", base, err)
	}
	part.Rows, err = strconv.ParseUint(string(countData), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("part %s: bad row count %q", base, countData)
	}

	columnsData, err := d.ReadFile(path.Join(dir, ColumnsFileName))
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", base, err)
	}
	part.Columns, err = parseColumnsFile(columnsData)
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", base, err)
	}
	if schema != nil {
		for _, col := range part.Columns {
			def, ok := schema.Column(col.Name)
			if !ok {
				return nil, fmt.Errorf("part %s: column %s not in schema", base, col.Name)
			}
			if def.Type != col.Type {
				return nil, fmt.Errorf("part %s: column %s is %s on disk, %s in schema", base, col.Name, col.Type, def.Type)
			}
		}
	}

	codecData, err := d.ReadFile(path.Join(dir, CodecFileName))
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", base, err)
	}
	part.Codec, err = compression.ParseCodec(string(codecData))
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", base, err)
	}

	if _, ok := sums.Entry(UUIDFileName); ok {
		data, err := d.ReadFile(path.Join(dir, UUIDFileName))
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", base, err)
		}
		part.UUID, err = uuid.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("part %s: bad uuid: %w", base, err)
		}
	}

	if _, ok := sums.Entry(TTLFileName); ok {
		data, err := d.ReadFile(path.Join(dir, TTLFileName))
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", base, err)
		}
		part.TTL, err = parseTTL(data)
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", base, err)
		}
	}

	if _, ok := sums.Entry(SerializationFileName); ok {
		data, err := d.ReadFile(path.Join(dir, SerializationFileName))
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", base, err)
		}
		serials, err := parseSerialization(data)
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", base, err)
		}
		part.Serializations = make(map[string]SerializationKind, len(serials))
		for _, s := range serials {
			kind, _ := ParseSerializationKind(s.Kind)
			part.Serializations[s.Name] = kind
		}
	}

	if schema != nil && schema.Partition != nil {
		if err := loadPartitionMeta(d, dir, schema, sums, part); err != nil {
			return nil, fmt.Errorf("part %s: %w", base, err)
		}
	}

	return part, nil
}

func loadPartitionMeta(d disk.Disk, dir string, schema *Schema, sums *Checksums, part *Part) error {
	_, havePartition := sums.Entry(PartitionFileName)
	if !havePartition {
		if part.Rows > 0 {
			return fmt.Errorf("%d rows but no partition metadata", part.Rows)
		}
		return nil
	}

	src, _ := schema.Column(schema.Partition.Column)

	data, err := d.ReadFile(path.Join(dir, PartitionFileName))
	if err != nil {
		return err
	}
	part.PartitionValue, _, err = DecodeValue(data, schema.Partition.ValueType(src.Type))
	if err != nil {
		return fmt.Errorf("partition value: %w", err)
	}

	mmName := "minmax_" + src.Name + ".idx"
	if _, ok := sums.Entry(mmName); !ok {
		return fmt.Errorf("partition metadata without %s", mmName)
	}
	mmData, err := d.ReadFile(path.Join(dir, mmName))
	if err != nil {
		return err
	}
	mm, err := decodeMinMax(mmData, src.Name, src.Type)
	if err != nil {
		return err
	}
	part.MinMax = []*MinMaxIndex{mm}
	return nil
}
