// Package rate throttles failed password logins with Redis fixed-window counters.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys:
//   - <prefix>:login:u:<username>  failed attempts per username
//   - <prefix>:login:ip:<ip>       failed attempts per client IP (when PerIP is set)
//
// A nil *Limiter allows everything, so callers can wire it unconditionally.
//
// # What this package must NOT do
//
//   - Verify passwords or touch session cookies.
//   - Be imported outside the goSession module.
package rate
