// Package aggregate combines per-agent module results into the mechanical
// panel score.
//
// The overall score is round(Σ weight/100 × moduleScore) over the panel's
// non-coordinator members. A missing result contributes zero and the sum is
// never renormalized; weights that do not add up to 100 still produce a
// best-effort score, flagged with WeightWarning. Classification follows the
// five-tier ladder in Classify. Checklist rollups are informational and never
// feed the numeric score.
package aggregate
