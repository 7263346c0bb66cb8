// Package policy implements the deterministic keyword rule engine that produces the
// first governance signal for a request.
//
// Every rule whose keyword occurs in the request text (compared under Unicode case
// folding) is reported in rule store order. The resolved decision and risk level are
// each the highest ranked value among the matches; ties keep the earlier rule's value
// and zero matches keep the caller supplied defaults.
package policy
