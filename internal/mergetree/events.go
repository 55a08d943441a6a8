package mergetree

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Part lifecycle event types.
const (
	PartEventCommitted = "part_committed"
	PartEventRetired   = "part_retired"
)

// PartEvent notifies downstream consumers that a part became visible or was
// retired. Events are advisory: the part directory and the active set are
// authoritative. Checksum is the SHA-256 of the rendered manifest, so two
// replicas can compare a part without transferring its files.
type PartEvent struct {
	Type        string `json:"type"`
	Table       string `json:"table"`
	Part        string `json:"part"`
	PartitionID string `json:"partition_id"`
	Rows        uint64 `json:"rows"`
	Bytes       uint64 `json:"bytes"`
	Checksum    string `json:"checksum,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// Subject is the queue subject the event publishes under.
func (e *PartEvent) Subject() string {
	return "parts." + e.Table + "." + e.Type
}

func newPartEvent(eventType, table string, p *Part) *PartEvent {
	e := &PartEvent{
		Type:        eventType,
		Table:       table,
		Part:        p.Name.String(),
		PartitionID: p.Name.PartitionID,
		Rows:        p.Rows,
		Bytes:       p.BytesOnDisk,
		Timestamp:   time.Now().Unix(),
	}
	if p.Checksums != nil {
		sum := sha256.Sum256(p.Checksums.Render())
		e.Checksum = hex.EncodeToString(sum[:])
	}
	return e
}
