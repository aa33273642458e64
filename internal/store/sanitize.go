package store

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"
)

// sanitize drops fields whose value is absent or the empty string so that
// optional fields are never persisted empty. Transform sentinels, booleans
// and non-empty strings pass through unchanged.
func sanitize(fields map[string]any, log *logrus.Logger) map[string]any {
	out := make(map[string]any, len(fields))

	var stripped []string

	for k, v := range fields {
		switch tv := v.(type) {
		case nil:
			stripped = append(stripped, k)
		case string:
			if tv == "" {
				stripped = append(stripped, k)
				continue
			}

			out[k] = tv
		case *time.Time:
			if tv == nil {
				stripped = append(stripped, k)
				continue
			}

			out[k] = *tv
		default:
			out[k] = v
		}
	}

	if len(stripped) > 0 && log != nil {
		slices.Sort(stripped)
		log.WithField("fields", stripped).Debug("stripped empty fields before write")
	}

	return out
}
