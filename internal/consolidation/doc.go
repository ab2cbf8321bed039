// Package consolidation turns the coordinator agent's response into the final
// report of an evaluation.
//
// The coordinator runs after every panel module has produced a result. Its
// response is parsed totally: a well-formed payload becomes a Result, anything
// else is kept as raw text. Consolidate then combines the outcome with the
// mechanical aggregation. When the coordinator's opinion is unusable the
// report falls back to the aggregate and carries an explicit fallback marker,
// so readers can always tell the two sources apart.
package consolidation
