// Package transport turns a dialog into an HTTP request for a model endpoint
// and turns the reply back into plain assistant text.
//
// # Variants
//
// Two request/response shapes are supported, selected by Kind when a session
// is built:
//
//   - KindCompletions: POST {"messages": [...]} with the full history and the
//     system prompt; reply read from choices[0].message.content.
//   - KindContentArray: POST {"model", "max_tokens", "messages": [user]} with
//     only the newest user turn; reply read from content[0].text.
//
// # Failures
//
// Send never returns an error. A network failure, a non-2xx status or an
// unparseable body becomes the text
//
//	Error communicating with <name>: <message>
//
// and a well-formed body without the expected field becomes FallbackText.
// Both are stored by the session like any other reply.
package transport
