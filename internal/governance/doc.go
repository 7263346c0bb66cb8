// Package governance provides the runtime safety controls around the gatekeeper's
// external dependencies: bounded retries of transient failures, timeout enforcement
// for reasoning engine calls, and token bucket rate limiting for the HTTP service.
//
// None of these controls influence a verdict. They only decide whether a call is
// attempted again, how long it may take, and whether a request is admitted at all.
package governance
