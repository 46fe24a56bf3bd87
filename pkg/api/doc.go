// Package api defines the conversation types shared by every plauder
// component: roles, messages, the append-only conversation, and the error
// taxonomy returned by completion calls.
//
// The package has zero external dependencies and performs no I/O.
//
// Core types:
//   - [Role]: sender tag (system, user, assistant)
//   - [Message]: immutable role/content pair with its [WireMessage] form
//   - [Conversation]: ordered, append-only message history
//   - [APIError]: typed error (request_failed, empty_response, invalid_request)
package api
