// Package session runs conversations against a model endpoint.
//
// # Session
//
// A Session owns one dialog store and one transport:
//
//	s := session.New(tr, session.Options{Name: "local", SystemPrompt: "..."})
//	reply, err := s.SendMessage(ctx, "hello")
//
// SendMessage moves the session from Idle to Sending and back. While a send is
// in flight a second call returns ErrBusy immediately; it is not queued. Empty
// input returns ErrEmptyMessage. Nothing else is returned as an error: network
// and parse failures come back as reply text and are recorded in the history.
//
// # Manager
//
// A Manager builds one session per configured endpoint and hands all of them
// the same reasoning-visibility flag, so toggling it from any session
// reclassifies the stored replies of every session.
package session
