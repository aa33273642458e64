// Package identity resolves bearer tokens to user ids and user ids to
// display names from a static token list.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownToken is returned when a bearer token matches no user.
var ErrUnknownToken = errors.New("unknown token")

// Directory is an immutable token and display name registry.
type Directory struct {
	users map[string]string // token hash -> user id
	names map[string]string // user id -> display name
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Parse builds a Directory from comma-separated entries of the form
// token:user or token:user:Display Name.
func Parse(list string) (*Directory, error) {
	d := &Directory{
		users: make(map[string]string),
		names: make(map[string]string),
	}

	for i, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("entry %d: expected token:user[:name]", i+1)
		}

		token, user := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		h := hashToken(token)
		if _, dup := d.users[h]; dup {
			return nil, fmt.Errorf("entry %d: duplicate token", i+1)
		}

		d.users[h] = user

		if len(parts) == 3 {
			if name := strings.TrimSpace(parts[2]); name != "" {
				d.names[user] = name
			}
		}
	}

	return d, nil
}

// UserByToken returns the user id for token.
func (d *Directory) UserByToken(_ context.Context, token string) (string, error) {
	if user, ok := d.users[hashToken(token)]; ok {
		return user, nil
	}

	return "", ErrUnknownToken
}

// DisplayName returns the configured name for user, or "" if none.
func (d *Directory) DisplayName(user string) string {
	return d.names[user]
}

// Users returns every known user id, sorted.
func (d *Directory) Users() []string {
	seen := make(map[string]struct{}, len(d.users))
	out := make([]string, 0, len(d.users))

	for _, u := range d.users {
		if _, ok := seen[u]; ok {
			continue
		}

		seen[u] = struct{}{}
		out = append(out, u)
	}

	sort.Strings(out)

	return out
}
