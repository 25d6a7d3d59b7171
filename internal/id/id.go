// Package id generates the prefixed NanoID identifiers the reader hands
// out: "ses-" for sessions and "syn-" for sync journal entries.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Generate creates a prefixed unique ID, e.g. "ses-V1StGXR8_Z5jdHi6B-myT".
// The prefix makes an ID's kind readable in logs and journal rows; the
// NanoID part is 21 URL-safe characters.
//
// Returns an error if the system has insufficient entropy for secure random
// generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails. For
// initialization paths where a missing entropy source should crash.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
