// Package teams composes evaluation panels.
//
// A team owns an ordered list of members. Exactly one member is the
// coordinator: it carries weight 0, sorts first with sortOrder -1 and runs
// last. Every other member carries an integer weight, and a team is runnable
// only when those weights sum to 100.
//
// Weight edits are staged in a Draft and written by Store.Commit in a single
// transaction that re-validates the panel against the persisted state, so a
// concurrent reader never sees a half-applied panel.
package teams
