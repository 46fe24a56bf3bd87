package engine

// Config holds configuration for the completion engine.
type Config struct {
	// OnFragment, when set, is called with every streamed content fragment
	// in arrival order, after the fragment has been written to the sink.
	// It runs on the caller's goroutine and must not block for long.
	OnFragment func(fragment string)
}
