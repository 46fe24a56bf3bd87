// Package storage defines the transcript store used to persist chat
// sessions, together with the sentinel errors shared by its adapters.
//
// Adapters live in subpackages: memory keeps transcripts for the lifetime
// of the process, postgres persists them so a session can be resumed.
package storage
