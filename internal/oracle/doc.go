// Package oracle defines the boundary between the update engine and the
// data portal it scrapes.
//
// The portal is treated as a slow, fallible, stateful black box. A Session
// holds whatever state the portal needs (a browser tab, cookies) and is
// reused for many fetches by a single worker; it is never shared between
// goroutines. A Factory builds sessions and is resolved once at startup
// from the configured strategy.
//
// Failures are reported as *FetchError with a Kind. AccessDenied and
// Timeout are transient and retried by Retry; everything else is permanent.
package oracle
