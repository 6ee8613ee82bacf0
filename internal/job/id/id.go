// Package id mints identifiers for reel jobs.
package id

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix starts every identifier minted by Generate.
const Prefix = "reel-"

// Generate creates a new unique job ID.
// Format: reel-<unix seconds>-<12 hex chars>
// Example: reel-1760870400-9f86d081884c
func Generate() string {
	u, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s%d", Prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s%d-%s", Prefix, time.Now().Unix(), hex.EncodeToString(u[:6]))
}

// Valid reports whether s has the shape of a generated ID. It lets the HTTP
// layer answer 404 for garbage IDs without hitting the repository.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok || rest == "" || len(rest) > 64 {
		return false
	}
	for _, r := range rest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && r != '-' {
			return false
		}
	}
	return true
}
