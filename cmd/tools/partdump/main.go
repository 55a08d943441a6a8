package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
)

func main() {
	log.SetFlags(0)

	partDir := flag.String("part", "", "part directory to dump (required)")
	output := flag.String("output", "./csv", "output CSV directory")
	columns := flag.String("columns", "", "comma-separated column filter (default: all columns)")
	timezone := flag.String("timezone", "UTC", "timezone for DateTime column rendering")
	flag.Parse()

	if *partDir == "" {
		log.Fatal("the -part flag is required")
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", *timezone, err)
	}

	abs, err := filepath.Abs(*partDir)
	if err != nil {
		log.Fatalf("resolve part path: %v", err)
	}
	d, err := disk.NewLocal(filepath.Dir(abs))
	if err != nil {
		log.Fatalf("open part directory: %v", err)
	}

	part, err := mergetree.LoadPart(d, filepath.Base(abs), nil, false)
	if err != nil {
		log.Fatalf("load part: %v", err)
	}

	selected, err := selectColumns(part, *columns)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("part %s: %d rows, %d columns\n", part.Name, part.Rows, len(selected))

	cols := make([]*mergetree.Column, len(selected))
	for i, def := range selected {
		col, err := mergetree.ReadColumn(d, part, def.Name)
		if err != nil {
			log.Fatalf("read column %s: %v", def.Name, err)
		}
		cols[i] = col
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	outputFile := filepath.Join(*output, part.Name.String()+".csv")
	if err := exportToCSV(outputFile, selected, cols, loc); err != nil {
		log.Fatalf("export CSV: %v", err)
	}

	fmt.Printf("wrote %d rows to %s\n", part.Rows, outputFile)
}

// selectColumns resolves the -columns filter against the part's column list,
// keeping physical column order.
func selectColumns(part *mergetree.Part, filter string) ([]mergetree.ColumnDef, error) {
	if filter == "" {
		return part.Columns, nil
	}

	wanted := make(map[string]bool)
	for _, name := range strings.Split(filter, ",") {
		wanted[strings.TrimSpace(name)] = true
	}

	var selected []mergetree.ColumnDef
	for _, def := range part.Columns {
		if wanted[def.Name] {
			selected = append(selected, def)
			delete(wanted, def.Name)
		}
	}
	for name := range wanted {
		return nil, fmt.Errorf("part has no column %q", name)
	}
	return selected, nil
}

// exportToCSV writes one CSV row per part row, columns in part order.
func exportToCSV(filename string, defs []mergetree.ColumnDef, cols []*mergetree.Column, loc *time.Location) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := make([]string, len(defs))
	for i, def := range defs {
		header[i] = def.Name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if len(cols) == 0 {
		return nil
	}

	row := make([]string, len(cols))
	for i := 0; i < cols[0].Len(); i++ {
		for j, col := range cols {
			row[j] = formatValue(col.Value(i), loc)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	return nil
}

// formatValue renders one cell. DateTime columns are shown as RFC3339 in the
// requested timezone instead of raw Unix seconds.
func formatValue(v mergetree.Value, loc *time.Location) string {
	if v.Type() == mergetree.TypeDateTime {
		return v.Time().In(loc).Format(time.RFC3339)
	}
	return v.String()
}
