// Package dedupe remembers which chat events have already been handled so a
// redelivered event is answered at most once within a bounded window.
package dedupe
