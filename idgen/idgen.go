// Package idgen produces the identifiers domprobe hands out: session ids,
// subscription ids, delivery ids and in-page binding names.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so deliveries sort in emission order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Identifier returns a Generator whose output is a valid JavaScript
// identifier: the prefix followed by the hex digits of a UUID v7. Binding
// names exposed to the page must be identifiers.
func Identifier(prefix string) Generator {
	gen := UUIDv7()
	return func() string {
		return prefix + strings.ReplaceAll(gen(), "-", "")
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}
