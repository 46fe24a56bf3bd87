// Package engine implements the completion client: it sends a conversation
// to a provider and turns the answer into an assistant message, either in
// one piece or by writing streamed fragments to an output sink as they
// arrive.
package engine
