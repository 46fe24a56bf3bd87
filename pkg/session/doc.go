// Package session runs the interactive conversation loop: it reads user
// input line by line, sends the growing conversation to a Completer and
// records every message in an optional transcript store.
package session
