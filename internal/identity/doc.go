/*
Package identity resolves a user-supplied login name to the form an Active Directory
domain actually accepts, and authenticates it.

Active Directory accepts the same account under more than one login name: the user
principal name (alice@example.com) and the down-level logon name (EXAMPLE\alice). It does
not say which one a given account expects, and every bind attempt costs a network round
trip plus, on failure, a timeout. The Resolver hides this from callers.

# Resolution

Resolve runs in two stages:

  - Fast path: when the FormatCache remembers which format last worked for the username,
    one bounded attempt is made with that format. Success returns immediately.
  - Full race: otherwise (or when the fast path fails) every candidate produced by the
    Generator is attempted concurrently, each under its own deadline. The resolver waits
    for all of them, then picks the first success in generator order.

A winning UPN or down-level format is written back to the FormatCache. Failures are
reported as a Result carrying a user-facing Reason (see Normalize) and the list of
candidates that were tried. Resolve never returns an error and never panics out.

# Concurrency

Attempts for different candidates run in their own goroutines. An attempt whose deadline
passes is abandoned; its late result is dropped on a buffered channel and can never reach
the cache. The cache is the only shared mutable state. Writes carry a generation number
taken when Resolve started, so an older resolution cannot overwrite a newer one.
*/
package identity
