package teams

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// TotalWeight is the sum every runnable panel's module weights must reach.
	TotalWeight = 100
	// DefaultMemberWeight is used when a member is added without a weight.
	DefaultMemberWeight = 10
	// CoordinatorSortOrder pins the coordinator ahead of every module.
	CoordinatorSortOrder = -1
	// DefaultMeetingType applies to teams without an event type.
	DefaultMeetingType = "casamento"
)

// Team is an evaluation panel scoped to a tenant.
type Team struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	EventType   string
	IsDefault   bool
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Members     []Member
}

// Member is one seat on a panel.
type Member struct {
	ID                    string
	TeamID                string
	AgentID               string
	AgentKey              string
	AgentName             string
	Weight                int
	SortOrder             int
	BusinessRulesOverride string
	IsCoordinator         bool
	CreatedAt             time.Time
}

// MeetingType returns the team's event type, defaulting to casamento.
func (t *Team) MeetingType() string {
	if t == nil || strings.TrimSpace(t.EventType) == "" {
		return DefaultMeetingType
	}
	return t.EventType
}

// Coordinator returns the coordinator seat, or nil when the panel has none.
func (t *Team) Coordinator() *Member {
	for i := range t.Members {
		if t.Members[i].IsCoordinator {
			return &t.Members[i]
		}
	}
	return nil
}

// Modules returns the non-coordinator seats in execution order.
func (t *Team) Modules() []Member {
	return modules(t.Members)
}

// WeightSum totals the module weights.
func (t *Team) WeightSum() int {
	return weightSum(t.Members)
}

func modules(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, member := range members {
		if !member.IsCoordinator {
			out = append(out, member)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

func weightSum(members []Member) int {
	total := 0
	for _, member := range members {
		if !member.IsCoordinator {
			total += member.Weight
		}
	}
	return total
}

// sortMembers orders the coordinator first, then modules by sortOrder.
func sortMembers(members []Member) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].IsCoordinator != members[j].IsCoordinator {
			return members[i].IsCoordinator
		}
		return members[i].SortOrder < members[j].SortOrder
	})
}

// Validation describes whether a panel can run.
type Validation struct {
	Valid        bool     `json:"valid"`
	WeightSum    int      `json:"weightSum"`
	Modules      int      `json:"modules"`
	Coordinators int      `json:"coordinators"`
	Problems     []string `json:"problems,omitempty"`
}

// Check evaluates the run preconditions over a set of members: at least one
// module, exactly one coordinator at weight 0, module weights summing to 100.
func Check(members []Member) Validation {
	v := Validation{WeightSum: weightSum(members)}
	for _, member := range members {
		if member.IsCoordinator {
			v.Coordinators++
			if member.Weight != 0 {
				v.Problems = append(v.Problems, fmt.Sprintf("coordinator weight must be 0, got %d", member.Weight))
			}
			continue
		}
		v.Modules++
		if member.Weight < 0 || member.Weight > TotalWeight {
			v.Problems = append(v.Problems, fmt.Sprintf("weight of %s must be between 0 and 100, got %d", memberLabel(member), member.Weight))
		}
	}
	if v.Modules == 0 {
		v.Problems = append(v.Problems, "panel has no evaluation modules")
	}
	switch {
	case v.Coordinators == 0:
		v.Problems = append(v.Problems, "panel has no coordinator")
	case v.Coordinators > 1:
		v.Problems = append(v.Problems, fmt.Sprintf("panel has %d coordinators", v.Coordinators))
	}
	if v.WeightSum != TotalWeight {
		v.Problems = append(v.Problems, fmt.Sprintf("module weights sum to %d, expected %d", v.WeightSum, TotalWeight))
	}
	v.Valid = len(v.Problems) == 0
	return v
}

// Error joins the problems into a single message.
func (v Validation) Error() string {
	return strings.Join(v.Problems, "; ")
}

// DistributeEvenly assigns floor(100/n) to every module and the remainder
// to the first module by sortOrder. The coordinator stays at 0.
func DistributeEvenly(members []Member) {
	order := make([]int, 0, len(members))
	for i := range members {
		if members[i].IsCoordinator {
			members[i].Weight = 0
			continue
		}
		order = append(order, i)
	}
	if len(order) == 0 {
		return
	}
	sort.SliceStable(order, func(a, b int) bool {
		return members[order[a]].SortOrder < members[order[b]].SortOrder
	})
	base := TotalWeight / len(order)
	remainder := TotalWeight - base*len(order)
	for rank, idx := range order {
		members[idx].Weight = base
		if rank == 0 {
			members[idx].Weight += remainder
		}
	}
}

func memberLabel(member Member) string {
	switch {
	case member.AgentKey != "":
		return member.AgentKey
	case member.AgentName != "":
		return member.AgentName
	default:
		return member.ID
	}
}
