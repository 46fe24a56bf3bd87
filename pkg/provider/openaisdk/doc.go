// Package openaisdk implements provider.Provider on top of the official
// OpenAI Go SDK, pointed at a DIAL deployment.
//
// The SDK decodes the event stream itself, so chunks arrive already parsed.
// [Classify] applies the same content rule as the raw decoder to them.
package openaisdk
