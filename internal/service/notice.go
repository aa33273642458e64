package service

import (
	"fmt"
	"strings"

	"github.com/ernanint/notas-de-vidro/internal/models"
)

// Notice levels.
const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)

// Notice is a short user-facing message about the outcome of an operation.
type Notice struct {
	Level     string      `json:"level"`
	Title     string      `json:"title"`
	Message   string      `json:"message,omitempty"`
	Kind      models.Kind `json:"kind,omitempty"`
	EntityID  string      `json:"entity_id,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// NoticeSink delivers notices to a user's open connections.
type NoticeSink interface {
	Notify(user string, n Notice)
}

type discardSink struct{}

func (discardSink) Notify(string, Notice) {}

var successVerbs = map[string]string{
	"create":  "created",
	"update":  "updated",
	"toggle":  "updated",
	"share":   "shared",
	"unshare": "unshared",
	"delete":  "deleted",
}

// SuccessNotice builds the confirmation shown after op succeeds on kind.
func SuccessNotice(kind models.Kind, op, id string) Notice {
	verb, ok := successVerbs[op]
	if !ok {
		verb = "saved"
	}

	return Notice{
		Level:    NoticeSuccess,
		Title:    fmt.Sprintf("%s %s", capitalize(kind.Label()), verb),
		Kind:     kind,
		EntityID: id,
	}
}

// FailureNotice builds the message shown when op fails on kind with err.
func FailureNotice(kind models.Kind, op, id string, err error) Notice {
	cat := models.CategoryOf(err)

	var msg string

	switch cat {
	case models.CategoryUnauthenticated:
		msg = "Sign in to continue"
	case models.CategoryNotFound:
		msg = fmt.Sprintf("That %s no longer exists", kind.Label())
	case models.CategoryPermissionDenied:
		msg = fmt.Sprintf("You do not have permission to %s this %s", op, kind.Label())
	case models.CategoryAlreadyShared:
		msg = fmt.Sprintf("This %s is already shared with that user", kind.Label())
	case models.CategoryInvalidTarget:
		msg = "Choose another user to share with"
	case models.CategoryBackendUnavailable:
		msg = "Storage is unavailable, try again shortly"
	case models.CategoryValidation, models.CategoryUnsupported:
		msg = err.Error()
	default:
		msg = "Something went wrong"
	}

	return Notice{
		Level:     NoticeError,
		Title:     fmt.Sprintf("Could not %s %s", op, kind.Label()),
		Message:   msg,
		Kind:      kind,
		EntityID:  id,
		Retryable: cat.Retryable(),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
