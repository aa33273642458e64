package client

import (
	"encoding/json"
	"time"
)

// Entity kinds as they appear in URLs.
const (
	KindNotes     = "notes"
	KindTasks     = "tasks"
	KindChecklist = "checklist"
)

// ChangeRecord is one entry in an entity's change history.
type ChangeRecord struct {
	ID               string    `json:"id"`
	ActorID          string    `json:"actor_id"`
	ActorDisplayName string    `json:"actor_display_name"`
	Kind             string    `json:"kind"`
	Target           string    `json:"target,omitempty"`
	Fields           []string  `json:"fields,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Entity is a note, task or checklist item. Kind-specific fields are empty
// for the other kinds.
type Entity struct {
	ID              string         `json:"id"`
	Kind            string         `json:"kind"`
	Title           string         `json:"title"`
	Owner           string         `json:"owner"`
	SharedWith      []string       `json:"shared_with"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ChangeHistory   []ChangeRecord `json:"change_history"`
	BackgroundColor string         `json:"background_color,omitempty"`
	BackgroundImage string         `json:"background_image,omitempty"`

	Content  string `json:"content,omitempty"`
	IsLocked bool   `json:"is_locked,omitempty"`

	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	Completed bool `json:"completed"`
}

// CreateRequest is the payload for creating an entity.
type CreateRequest struct {
	Title           string     `json:"title"`
	Content         string     `json:"content,omitempty"`
	Password        string     `json:"password,omitempty"`
	Description     string     `json:"description,omitempty"`
	Priority        string     `json:"priority,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	BackgroundColor string     `json:"background_color,omitempty"`
	BackgroundImage string     `json:"background_image,omitempty"`
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Title           *string    `json:"title,omitempty"`
	Content         *string    `json:"content,omitempty"`
	Password        *string    `json:"password,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Priority        *string    `json:"priority,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	ClearDueDate    bool       `json:"clear_due_date,omitempty"`
	Completed       *bool      `json:"completed,omitempty"`
	BackgroundColor *string    `json:"background_color,omitempty"`
	BackgroundImage *string    `json:"background_image,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// AuditEntry is one record from the audit log.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditQueryOptions narrows an audit query.
type AuditQueryOptions struct {
	EntityID string
	Action   string
	Since    *time.Time
	Limit    int
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Storage       string  `json:"storage"`
	Database      string  `json:"database"`
	SchemaVersion int     `json:"schema_version"`
	LiveClients   int     `json:"live_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Live event types.
const (
	EventSnapshot = "snapshot"
	EventNotice   = "notice"
	EventShutdown = "shutdown"
)

// Event is one frame received on a live connection.
type Event struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
	Time time.Time       `json:"time"`
}

// Snapshot is the full accessible list of one kind.
type Snapshot struct {
	Kind  string   `json:"kind"`
	Ready bool     `json:"ready"`
	Items []Entity `json:"items"`
}

// Notice is a user-facing success or failure message.
type Notice struct {
	Level     string `json:"level"`
	Title     string `json:"title"`
	Message   string `json:"message,omitempty"`
	Kind      string `json:"kind,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Snapshot decodes a snapshot event.
func (e Event) Snapshot() (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Notice decodes a notice event.
func (e Event) Notice() (*Notice, error) {
	var n Notice
	if err := json.Unmarshal(e.Data, &n); err != nil {
		return nil, err
	}

	return &n, nil
}
