package models

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// ChangeKind is the structured type of a change record.
type ChangeKind string

// Change kinds.
const (
	ChangeCreated   ChangeKind = "created"
	ChangeModified  ChangeKind = "modified"
	ChangeCompleted ChangeKind = "completed"
	ChangeReopened  ChangeKind = "reopened"
	ChangeShared    ChangeKind = "shared"
	ChangeUnshared  ChangeKind = "unshared"

	// ChangeLegacy marks records persisted with only a free-text action.
	ChangeLegacy ChangeKind = "legacy"
)

// ChangeRecord is one immutable entry in an entity's change history.
type ChangeRecord struct {
	ID               string     `json:"id"`
	ActorID          string     `json:"actor_id"`
	ActorDisplayName string     `json:"actor_display_name"`
	Kind             ChangeKind `json:"kind"`
	Target           string     `json:"target,omitempty"`
	Fields           []string   `json:"fields,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// Action renders the record as a short human description. A caller-supplied
// reason takes precedence over the rendering of the structured kind.
func (c ChangeRecord) Action() string {
	if c.Reason != "" {
		return c.Reason
	}

	switch c.Kind {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		if len(c.Fields) == 0 {
			return "modified"
		}

		return "modified " + strings.Join(c.Fields, ", ")
	case ChangeCompleted:
		return "marked complete"
	case ChangeReopened:
		return "reopened"
	case ChangeShared:
		return "shared with " + c.Target
	case ChangeUnshared:
		return "removed " + c.Target
	default:
		return string(c.Kind)
	}
}

// Clone returns a copy of c that shares no slices with it.
func (c ChangeRecord) Clone() ChangeRecord {
	c.Fields = slices.Clone(c.Fields)
	return c
}

// MarshalJSON adds the rendered action so clients need not render it themselves.
func (c ChangeRecord) MarshalJSON() ([]byte, error) {
	type plain ChangeRecord

	return json.Marshal(struct {
		plain
		Action string `json:"action"`
	}{plain(c), c.Action()})
}
