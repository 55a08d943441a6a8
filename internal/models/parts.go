package models

import (
	"github.com/google/uuid"

	"github.com/lyrixx/ClickHouse/internal/mergetree"
)

// PartSummary represents one active part in a listing
type PartSummary struct {
	Name        string `json:"name"`
	PartitionID string `json:"partition_id"`
	State       string `json:"state"`
	Rows        uint64 `json:"rows"`
	Bytes       uint64 `json:"bytes"`
}

// PartListResponse represents the active parts of a table
type PartListResponse struct {
	Table string        `json:"table"`
	Parts []PartSummary `json:"parts"`
	Count int           `json:"count"`
}

// PartFileEntry is one manifest entry of a part
type PartFileEntry struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
	Hash string `json:"hash"`
}

// PartColumn describes one column physically present in a part
type PartColumn struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Serialization string `json:"serialization"`
}

// PartDetail represents one part including its manifest
type PartDetail struct {
	PartSummary
	UUID    string          `json:"uuid,omitempty"`
	Columns []PartColumn    `json:"columns"`
	Files   []PartFileEntry `json:"files"`
}

// NewPartSummary builds a listing entry from a part
func NewPartSummary(p *mergetree.Part) PartSummary {
	return PartSummary{
		Name:        p.Name.String(),
		PartitionID: p.Name.PartitionID,
		State:       p.State.String(),
		Rows:        p.Rows,
		Bytes:       p.BytesOnDisk,
	}
}

// NewPartDetail builds a detail view from a part
func NewPartDetail(p *mergetree.Part) PartDetail {
	d := PartDetail{
		PartSummary: NewPartSummary(p),
		Columns:     make([]PartColumn, 0, len(p.Columns)),
	}

	if p.UUID != uuid.Nil {
		d.UUID = p.UUID.String()
	}

	for _, c := range p.Columns {
		d.Columns = append(d.Columns, PartColumn{
			Name:          c.Name,
			Type:          c.Type.String(),
			Serialization: p.SerializationOf(c.Name).String(),
		})
	}

	if p.Checksums != nil {
		d.Files = make([]PartFileEntry, 0, p.Checksums.Len())
		for _, name := range p.Checksums.Files() {
			fc, _ := p.Checksums.Entry(name)
			d.Files = append(d.Files, PartFileEntry{
				Name: name,
				Size: fc.Size,
				Hash: fc.Hash,
			})
		}
	}

	return d
}
