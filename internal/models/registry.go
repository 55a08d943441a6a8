package models

import "time"

// NodeInfo is the document an ingest node publishes to the cluster
// registry: where to reach it, what it serves and how full it is.
type NodeInfo struct {
	ID        string      `json:"id"`
	Address   string      `json:"address"`
	Status    string      `json:"status"` // active, draining, down
	Version   string      `json:"version"`
	Capacity  Capacity    `json:"capacity"`
	Tables    []TableInfo `json:"tables"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Capacity totals the committed parts and disk usage of one node. Disk
// figures are bytes.
type Capacity struct {
	TotalParts    int   `json:"total_parts"`
	DiskTotal     int64 `json:"disk_total"`
	DiskUsed      int64 `json:"disk_used"`
	DiskAvailable int64 `json:"disk_available"`
}

// TableInfo sums the committed parts of one table on this node.
type TableInfo struct {
	Table    string `json:"table"`
	Parts    int    `json:"parts"`
	Rows     uint64 `json:"rows"`
	DataSize int64  `json:"data_size"` // bytes
}
