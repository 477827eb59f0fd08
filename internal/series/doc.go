// Package series defines the domain model shared by the store, the fetch
// oracle and the update engine: series metadata, observation points, the
// operation log vocabulary and the staleness policy.
//
// Everything in this package is pure. Nothing here touches the network,
// the database or the wall clock; callers pass "now" explicitly.
//
// Frequency handling follows one ordered table:
//
//	Daily -> Weekly -> Biweekly -> Monthly -> Quarterly
//
// A frequency label matches the first entry whose keyword appears in it
// (case-insensitive substring). The same table drives admission into the
// active set and the recheck interval, so the two can never disagree.
// Labels that match nothing (Annual, Semiannual, empty) are not admitted
// and are rechecked daily.
package series
