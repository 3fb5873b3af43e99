package storage

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

func newID() string {
	return uuid.NewString()
}

// normalizeIdentity case-folds a username or email so lookups and uniqueness
// checks are case-insensitive across scripts, not just ASCII.
func normalizeIdentity(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}
