package models

// HealthResponse reports liveness plus what this node is serving.
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Uptime  float64  `json:"uptime_seconds"`
	Tables  []string `json:"tables"`
}

// TableStatsResponse aggregates counters over a table's active parts.
type TableStatsResponse struct {
	Table string `json:"table"`
	Parts int    `json:"parts"`
	Rows  uint64 `json:"rows"`
	Bytes uint64 `json:"bytes"`
}

// ErrorResponse is the envelope every non-2xx response carries.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail pairs a machine-readable code with a human-readable
// message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// NewError builds the error envelope.
func NewError(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// NewErrorAt is NewError with the request path recorded.
func NewErrorAt(code, message, path string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message, Path: path}}
}
