package teams

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"evalpanel/internal/agents"
	"evalpanel/internal/services"
)

// Draft stages panel edits locally. Nothing is persisted until Store.Commit,
// which replays the draft against the current panel inside a transaction.
type Draft struct {
	teamID  string
	members []Member
	known   map[string]bool
	weights map[string]int
	added   []Member
	removed map[string]bool
	order   []string
}

// NewDraft snapshots team for editing.
func NewDraft(team *Team) *Draft {
	d := &Draft{
		teamID:  team.ID,
		members: append([]Member(nil), team.Members...),
		known:   make(map[string]bool, len(team.Members)),
		weights: make(map[string]int),
		removed: make(map[string]bool),
	}
	for _, member := range team.Members {
		d.known[member.ID] = true
	}
	return d
}

// TeamID is the team the draft edits.
func (d *Draft) TeamID() string {
	return d.teamID
}

// Dirty reports whether the draft holds any staged change.
func (d *Draft) Dirty() bool {
	return len(d.weights) > 0 || len(d.added) > 0 || len(d.removed) > 0 || d.order != nil
}

// SetWeight stages a new weight for a module seat.
func (d *Draft) SetWeight(memberID string, weight int) error {
	member, err := d.lookup(memberID, "set weight")
	if err != nil {
		return err
	}
	if member.IsCoordinator {
		return services.Validation("teams", "set weight", "coordinator weight is fixed at 0")
	}
	if err := checkWeight("set weight", weight); err != nil {
		return err
	}
	d.weights[memberID] = weight
	return nil
}

// AddMember stages a new module seat for agent and returns its member id.
func (d *Draft) AddMember(agent *agents.Agent, weight int) (string, error) {
	if err := checkCandidate(agent); err != nil {
		return "", err
	}
	if err := checkWeight("add member", weight); err != nil {
		return "", err
	}
	for _, member := range d.Members() {
		if member.AgentID == agent.ID {
			return "", services.Validation("teams", "add member", fmt.Sprintf("agent %s is already a member", agent.Key))
		}
	}
	member := Member{
		ID:        uuid.NewString(),
		TeamID:    d.teamID,
		AgentID:   agent.ID,
		AgentKey:  agent.Key,
		AgentName: agent.Name,
		Weight:    weight,
	}
	d.added = append(d.added, member)
	if d.order != nil {
		d.order = append(d.order, member.ID)
	}
	return member.ID, nil
}

// RemoveMember stages the removal of a module seat.
func (d *Draft) RemoveMember(memberID string) error {
	member, err := d.lookup(memberID, "remove member")
	if err != nil {
		return err
	}
	if member.IsCoordinator {
		return services.Validation("teams", "remove member", "coordinator is mandatory")
	}
	if d.known[memberID] {
		d.removed[memberID] = true
	} else {
		kept := d.added[:0]
		for _, added := range d.added {
			if added.ID != memberID {
				kept = append(kept, added)
			}
		}
		d.added = kept
	}
	delete(d.weights, memberID)
	if d.order != nil {
		d.order = without(d.order, memberID)
	}
	return nil
}

// Reorder stages a new module order. memberIDs must list every module seat
// exactly once; the coordinator is not part of the sequence.
func (d *Draft) Reorder(memberIDs []string) error {
	current := modules(d.Members())
	if err := checkPermutation(current, memberIDs); err != nil {
		return err
	}
	d.order = append([]string(nil), memberIDs...)
	return nil
}

// DistributeEvenly stages evenly distributed weights for the current seats.
func (d *Draft) DistributeEvenly() {
	members := d.Members()
	DistributeEvenly(members)
	for _, member := range members {
		if !member.IsCoordinator {
			d.weights[member.ID] = member.Weight
		}
	}
}

// Members returns the panel as it would look after commit, coordinator first.
func (d *Draft) Members() []Member {
	members, _ := d.apply(d.members)
	return members
}

// Check validates the staged panel.
func (d *Draft) Check() Validation {
	return Check(d.Members())
}

// apply replays the draft over base. It fails when the draft references
// seats that no longer exist in base.
func (d *Draft) apply(base []Member) ([]Member, error) {
	present := make(map[string]bool, len(base))
	out := make([]Member, 0, len(base)+len(d.added))
	for _, member := range base {
		present[member.ID] = true
		if d.removed[member.ID] {
			continue
		}
		if weight, ok := d.weights[member.ID]; ok {
			member.Weight = weight
		}
		out = append(out, member)
	}
	for id := range d.weights {
		if d.known[id] && !present[id] {
			return nil, staleDraft(id)
		}
	}
	for id := range d.removed {
		if !present[id] {
			return nil, staleDraft(id)
		}
	}
	for _, added := range d.added {
		for _, member := range out {
			if member.AgentID == added.AgentID {
				return nil, services.Validation("teams", "commit", fmt.Sprintf("agent %s is already a member", added.AgentKey))
			}
		}
		if weight, ok := d.weights[added.ID]; ok {
			added.Weight = weight
		}
		added.SortOrder = nextSortOrder(out)
		out = append(out, added)
	}
	if d.order != nil {
		if err := checkPermutation(modules(out), d.order); err != nil {
			return nil, err
		}
		rank := make(map[string]int, len(d.order))
		for i, id := range d.order {
			rank[id] = i
		}
		for i := range out {
			if !out[i].IsCoordinator {
				out[i].SortOrder = rank[out[i].ID]
			}
		}
	}
	normalizeSortOrder(out)
	return out, nil
}

func (d *Draft) lookup(memberID, op string) (Member, error) {
	memberID = strings.TrimSpace(memberID)
	for _, member := range d.Members() {
		if member.ID == memberID {
			return member, nil
		}
	}
	return Member{}, services.NotFound("teams", op, fmt.Sprintf("member %s not found in team", memberID))
}

// normalizeSortOrder renumbers modules 0..n-1 in their current order and
// pins the coordinator at -1.
func normalizeSortOrder(members []Member) {
	sortMembers(members)
	next := 0
	for i := range members {
		if members[i].IsCoordinator {
			members[i].SortOrder = CoordinatorSortOrder
			members[i].Weight = 0
			continue
		}
		members[i].SortOrder = next
		next++
	}
}

func nextSortOrder(members []Member) int {
	next := 0
	for _, member := range members {
		if !member.IsCoordinator && member.SortOrder >= next {
			next = member.SortOrder + 1
		}
	}
	return next
}

func checkPermutation(current []Member, memberIDs []string) error {
	if len(memberIDs) != len(current) {
		return services.Validation("teams", "reorder", fmt.Sprintf("order lists %d members, panel has %d modules", len(memberIDs), len(current)))
	}
	want := make(map[string]bool, len(current))
	for _, member := range current {
		want[member.ID] = true
	}
	seen := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		if !want[id] {
			return services.Validation("teams", "reorder", fmt.Sprintf("member %s is not a reorderable module", id))
		}
		if seen[id] {
			return services.Validation("teams", "reorder", fmt.Sprintf("member %s listed twice", id))
		}
		seen[id] = true
	}
	return nil
}

func checkWeight(op string, weight int) error {
	if weight < 0 || weight > TotalWeight {
		return services.Validation("teams", op, fmt.Sprintf("weight must be between 0 and 100, got %d", weight))
	}
	return nil
}

func checkCandidate(agent *agents.Agent) error {
	if agent == nil {
		return services.Validation("teams", "add member", "agent is required")
	}
	if agent.IsCoordinator {
		return services.Validation("teams", "add member", "coordinators are added automatically")
	}
	if !agent.Active {
		return services.Validation("teams", "add member", fmt.Sprintf("agent %s is inactive", agent.Key))
	}
	return nil
}

func staleDraft(memberID string) error {
	return services.Wrap(services.ErrConflict, "teams", "commit", fmt.Sprintf("member %s changed since the draft was taken", memberID), nil)
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
