// Package id generates identifiers for agentpay entities.
//
// Payment tokens are bearer credentials and use random UUIDv4 (122 random bits).
// Everything else uses K-sortable TypeIDs in the format "prefix_suffix".
package id

import (
	"fmt"

	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixTransaction Prefix = "txn"
	PrefixQuote       Prefix = "quote"
	PrefixTask        Prefix = "task"
)

// New generates a TypeID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// HasPrefix reports whether s parses as a TypeID with the expected prefix.
func HasPrefix(s string, expected Prefix) bool {
	tid, err := typeid.Parse(s)
	if err != nil {
		return false
	}
	return tid.Prefix() == string(expected)
}

// NewToken returns a random payment token ID.
func NewToken() string { return uuid.NewString() }

// Transaction returns a new transaction ID.
func Transaction() string { return New(PrefixTransaction) }

// Quote returns a new price quote ID.
func Quote() string { return New(PrefixQuote) }

// Task returns a new task ID.
func Task() string { return New(PrefixTask) }
