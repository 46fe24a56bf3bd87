// Package provider defines the interface between the completion engine and
// an LLM backend. A backend performs one request per call and, when
// streaming, exposes the response as a sequence of [StreamChunk] values
// through a [ChunkStream]. How the wire bytes become chunks is the
// adapter's business: the dial adapter splits and decodes the raw event
// stream itself, the openaisdk adapter classifies chunks the SDK has
// already parsed. The engine only sees the three-way classification.
package provider
