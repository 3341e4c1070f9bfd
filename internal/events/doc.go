// Package events fans session activity out to live subscribers.
//
// Sessions publish an Event whenever a record is appended, the history is
// cleared, the send state changes, or the reasoning flag reclassifies a
// stored record. Subscribers register per session name and receive events on
// a buffered channel; slow subscribers lose events rather than block a send.
package events
