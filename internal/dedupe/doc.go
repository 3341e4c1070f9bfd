// Package dedupe remembers recently seen request keys so a retried send is
// not delivered to a model twice.
package dedupe
