package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ernanint/notas-de-vidro/internal/docstore"
	"github.com/ernanint/notas-de-vidro/internal/models"
)

// Persisted field names.
const (
	fieldKind            = "kind"
	fieldTitle           = "title"
	fieldOwner           = "owner"
	fieldSharedWith      = "sharedWith"
	fieldCreatedAt       = "createdAt"
	fieldUpdatedAt       = "updatedAt"
	fieldChangeHistory   = "changeHistory"
	fieldBackgroundColor = "backgroundColor"
	fieldBackgroundImage = "backgroundImage"
	fieldContent         = "content"
	fieldPassword        = "password"
	fieldIsLocked        = "isLocked"
	fieldDescription     = "description"
	fieldPriority        = "priority"
	fieldDueDate         = "dueDate"
	fieldCompleted       = "completed"

	// fieldTimestamp is the time key inside a stored change.
	fieldTimestamp = "timestamp"
)

// storedChange is the persisted form of a change record. Action is kept
// alongside the structured fields so older readers can still render it.
type storedChange struct {
	ID        string   `json:"id,omitempty"`
	UserID    string   `json:"userId"`
	UserName  string   `json:"userName"`
	Action    string   `json:"action"`
	Kind      string   `json:"kind,omitempty"`
	Target    string   `json:"target,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Timestamp flexTime `json:"timestamp"`
}

func encodeChange(c models.ChangeRecord) storedChange {
	return storedChange{
		ID:        c.ID,
		UserID:    c.ActorID,
		UserName:  c.ActorDisplayName,
		Action:    c.Action(),
		Kind:      string(c.Kind),
		Target:    c.Target,
		Fields:    c.Fields,
		Reason:    c.Reason,
		Timestamp: flexTime(c.OccurredAt),
	}
}

func (s storedChange) decode() models.ChangeRecord {
	rec := models.ChangeRecord{
		ID:               s.ID,
		ActorID:          s.UserID,
		ActorDisplayName: s.UserName,
		Kind:             models.ChangeKind(s.Kind),
		Target:           s.Target,
		Fields:           s.Fields,
		Reason:           s.Reason,
		OccurredAt:       time.Time(s.Timestamp),
	}

	if rec.Kind == "" {
		rec.Kind = models.ChangeLegacy
		rec.Reason = s.Action
	}

	if rec.ActorDisplayName == "" {
		rec.ActorDisplayName = rec.ActorID
	}

	return rec
}

// storedEntity is the persisted record shape shared by all kinds.
type storedEntity struct {
	Title           string         `json:"title"`
	Owner           string         `json:"owner"`
	SharedWith      []string       `json:"sharedWith"`
	CreatedAt       flexTime       `json:"createdAt"`
	UpdatedAt       flexTime       `json:"updatedAt"`
	ChangeHistory   []storedChange `json:"changeHistory"`
	BackgroundColor string         `json:"backgroundColor"`
	BackgroundImage string         `json:"backgroundImage"`
	Content         string         `json:"content"`
	Password        string         `json:"password"`
	IsLocked        bool           `json:"isLocked"`
	Description     string         `json:"description"`
	Priority        string         `json:"priority"`
	DueDate         *flexTime      `json:"dueDate"`
	Completed       bool           `json:"completed"`
}

// decodeEntity converts a stored document into an entity of kind. History
// is stored in append order and returned newest first.
func decodeEntity(kind models.Kind, doc docstore.Document) (*models.Entity, error) {
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("re-encoding document %s: %w", doc.ID, err)
	}

	var se storedEntity
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", kind.Label(), doc.ID, err)
	}

	e := &models.Entity{
		ID:              doc.ID,
		Kind:            kind,
		Title:           se.Title,
		Owner:           se.Owner,
		Collaborators:   se.SharedWith,
		CreatedAt:       time.Time(se.CreatedAt),
		UpdatedAt:       time.Time(se.UpdatedAt),
		BackgroundColor: se.BackgroundColor,
		BackgroundImage: se.BackgroundImage,
	}

	if e.Collaborators == nil {
		e.Collaborators = []string{}
	}

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	e.ChangeHistory = make([]models.ChangeRecord, 0, len(se.ChangeHistory))
	for i := len(se.ChangeHistory) - 1; i >= 0; i-- {
		e.ChangeHistory = append(e.ChangeHistory, se.ChangeHistory[i].decode())
	}

	switch kind {
	case models.KindNote:
		e.Content = se.Content
		e.Password = se.Password
		e.IsLocked = se.IsLocked
	case models.KindTask:
		e.Description = se.Description
		e.Priority = models.Priority(se.Priority)
		e.Completed = se.Completed

		if e.Priority == "" {
			e.Priority = models.PriorityMedium
		}

		if se.DueDate != nil && !time.Time(*se.DueDate).IsZero() {
			d := time.Time(*se.DueDate)
			e.DueDate = &d
		}
	case models.KindChecklistItem:
		e.Completed = se.Completed
	}

	return e, nil
}

func decodeAll(kind models.Kind, docs []docstore.Document) ([]models.Entity, error) {
	out := make([]models.Entity, 0, len(docs))

	for _, d := range docs {
		e, err := decodeEntity(kind, d)
		if err != nil {
			return nil, err
		}

		out = append(out, *e)
	}

	return out, nil
}

// flexTime decodes RFC 3339 strings and epoch milliseconds, and encodes as RFC 3339.
type flexTime time.Time

func (t flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*t = flexTime{}
		return nil
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}

		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return fmt.Errorf("parsing time %q: %w", str, err)
		}

		*t = flexTime(parsed.UTC())

		return nil
	}

	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing time %s: %w", s, err)
	}

	*t = flexTime(time.UnixMilli(int64(ms)).UTC())

	return nil
}
