package client

import "time"

// Status is a snapshot of a running renderer, published once per tick.
type Status struct {
	State        string        `json:"state"`
	BatchActive  bool          `json:"batch_active"`
	QueueDepth   int           `json:"queue_depth"`
	PendingItems int           `json:"pending_items"`
	PendingIcons []PendingIcon `json:"pending_icons,omitempty"`
	SkipList     int           `json:"skip_list"`
	InFlight     *Asset        `json:"in_flight,omitempty"`
	LastBatch    *BatchSummary `json:"last_batch,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Asset identifies one catalog entry.
type Asset struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// PendingIcon is an item icon waiting for its capture callback.
type PendingIcon struct {
	Asset       Asset     `json:"asset"`
	OutputPath  string    `json:"output_path"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// BatchSummary reports what the last batch submitted.
type BatchSummary struct {
	Items      int      `json:"items"`
	Vehicles   int      `json:"vehicles"`
	Skipped    int      `json:"skipped"`
	Publishers []uint64 `json:"publishers,omitempty"`
}

// SkipList is the response of GET /skiplist.
type SkipList struct {
	IDs []string `json:"ids"`
}

// SkipRequest adds an asset to the skip list.
type SkipRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// SkipResponse reports whether the id was new.
type SkipResponse struct {
	Added bool `json:"added"`
}

// BatchRequest starts a batch on a running instance. Omitted Generate
// flags default to true, as in a fresh config.json.
type BatchRequest struct {
	Mode             string    `json:"mode"`
	Publisher        *uint64   `json:"publisher,omitempty"`
	GenerateItems    *bool     `json:"generate_items,omitempty"`
	GenerateVehicles *bool     `json:"generate_vehicles,omitempty"`
	ItemAngles       []float64 `json:"item_angles,omitempty"`
	VehicleAngles    []float64 `json:"vehicle_angles,omitempty"`
	QuitWhenDone     bool      `json:"quit_when_done,omitempty"`
}

// Bool returns a pointer to v, for the optional BatchRequest flags.
func Bool(v bool) *bool { return &v }

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
