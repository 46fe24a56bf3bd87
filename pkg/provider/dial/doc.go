// Package dial implements provider.Provider for DIAL and Azure-OpenAI style
// deployments by speaking the Chat Completions protocol directly over HTTP.
//
// Streaming responses are read line by line from the raw body and each line
// is classified by [Decode]. Lines that are blank, are not "data: " events,
// or carry malformed JSON are skipped; "data: [DONE]" ends the stream.
package dial
