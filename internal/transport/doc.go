// Package transport gives the engine a uniform way to reach upstream endpoints
// regardless of which HTTP-capable tool is present on the host.
//
// # Backends
//
// Three interchangeable backends exist, ranked by preference:
//   - curl: the tool both updaters shell out to
//   - wget: the updaters' documented fallback
//   - native: Go's net/http client, always available
//
// Select picks the first available backend once per run. The ranking can be
// narrowed through configuration so that the run only exercises what the
// updaters themselves would use; if nothing in the ranking is available Select
// returns ErrNoBackend and callers treat every dependent probe as failed closed.
//
// # Probes
//
// ProbeStatus never returns an error. Any transport failure (DNS, TLS, timeout,
// an unparseable response) is reported as StatusUnknown ("000") so that
// classification always has a defined input. Reachable treats 2xx and 3xx as
// reachable and everything else as unreachable.
//
// # Byte ranges
//
// Range fetching is a separate capability (RangeFetcher) queried with
// SelectRange. wget does not implement it reliably, so it is never chosen for
// ranges even when it is the primary backend. A nil RangeFetcher means
// range-based checks are skipped, not failed.
//
// Nothing in this package retries. Each call is bounded by the connect and total
// timeouts in Options.
package transport
