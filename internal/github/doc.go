// Package github wraps the upstream API behind a credential pool and a
// retry/backoff policy shared by every caller.
//
// The pool rotates a set of tokens sharing one quota; the client picks
// a credential per call, feeds quota headers from every response back into
// the pool, and converts upstream failures into three caller-facing shapes:
// a typed QuotaError ("skip this cycle"), neutral empty results (404, or a
// non-quota 403 such as an endpoint refusing a huge repository), and
// plain errors for transient failures ("try again next cycle").
package github
