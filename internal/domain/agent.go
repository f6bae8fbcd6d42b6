package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// AgentType enumerates the roles an agent instance can take. The set is
// fixed; CreateAgent rejects anything outside it.
type AgentType string

const (
	TypePlanner      AgentType = "planner"
	TypeArchitect    AgentType = "architect"
	TypeDeveloper    AgentType = "developer"
	TypeSecurity     AgentType = "security"
	TypeQA           AgentType = "qa"
	TypeDomainExpert AgentType = "domain-expert"
	TypeCodeReviewer AgentType = "code-reviewer"
)

// AgentTypes lists every valid agent type in a stable order. Workload
// distribution and auto-scaling iterate this slice so their output is
// deterministic.
var AgentTypes = []AgentType{
	TypePlanner,
	TypeArchitect,
	TypeDeveloper,
	TypeSecurity,
	TypeQA,
	TypeDomainExpert,
	TypeCodeReviewer,
}

// Valid reports whether t is one of the enumerated agent types.
func (t AgentType) Valid() bool {
	for _, known := range AgentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AgentState is the lifecycle state of an agent instance.
//
// The scheduler drives Idle ↔ Working. Error and Maintenance are
// administrative: the engine never enters them on its own (except the stale
// sweep, which parks unresponsive agents in Error) and only interprets
// Maintenance as "not selectable".
type AgentState string

const (
	StateIdle        AgentState = "idle"
	StateWorking     AgentState = "working"
	StateError       AgentState = "error"
	StateMaintenance AgentState = "maintenance"
)

// CapabilitySet is a set of capability names with O(1) membership and
// superset checks. The zero value is usable as an empty set.
type CapabilitySet map[string]struct{}

// NewCapabilitySet builds a set from the given capability names.
func NewCapabilitySet(caps ...string) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Superset reports whether every capability in other is present in s.
// An empty or nil other is a subset of anything.
func (s CapabilitySet) Superset(other CapabilitySet) bool {
	for c := range other {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted string array.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON decodes a string array into the set.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var caps []string
	if err := json.Unmarshal(data, &caps); err != nil {
		return err
	}
	*s = NewCapabilitySet(caps...)
	return nil
}

// defaultCapabilities is the fixed per-type capability table. CreateAgent
// hands every new instance a copy of its type's entry.
var defaultCapabilities = map[AgentType]CapabilitySet{
	TypePlanner:      NewCapabilitySet("task_breakdown", "estimation", "planning", "prioritization"),
	TypeArchitect:    NewCapabilitySet("system_design", "architecture_review", "technology_selection", "scalability_analysis"),
	TypeDeveloper:    NewCapabilitySet("coding", "debugging", "testing", "documentation"),
	TypeSecurity:     NewCapabilitySet("security_review", "vulnerability_scan", "threat_modeling", "compliance"),
	TypeQA:           NewCapabilitySet("testing", "test_planning", "automation", "quality_review"),
	TypeDomainExpert: NewCapabilitySet("domain_knowledge", "requirements_analysis", "consultation"),
	TypeCodeReviewer: NewCapabilitySet("code_review", "style_check", "best_practices", "refactoring"),
}

// DefaultCapabilities returns a copy of the default capability set for t.
// Unknown types get an empty set.
func DefaultCapabilities(t AgentType) CapabilitySet {
	if caps, ok := defaultCapabilities[t]; ok {
		return caps.Clone()
	}
	return CapabilitySet{}
}

// DefaultMaxConcurrentTasks is the per-instance concurrency limit applied
// when an agent is created.
const DefaultMaxConcurrentTasks = 3

// PerformanceMetrics accumulates per-agent execution history.
//
// AvgExecutionTime uses the smoothing update (old + new) / 2 rather than a
// true running mean; recent samples are weighted disproportionately. The
// formula is kept for compatibility with existing consumers of the metric.
type PerformanceMetrics struct {
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	TotalTasks       int           `json:"total_tasks"`
	SuccessCount     int           `json:"success_count"`
}

// AgentInstance is one live worker in the pool. Instances are owned by the
// pool registry; callers always receive copies.
type AgentInstance struct {
	ID                 string             `json:"id"`
	Type               AgentType          `json:"type"`
	Name               string             `json:"name"`
	Capabilities       CapabilitySet      `json:"capabilities"`
	State              AgentState         `json:"state"`
	CurrentTask        string             `json:"current_task,omitempty"`
	Workload           int                `json:"workload"`
	MaxConcurrentTasks int                `json:"max_concurrent_tasks"`
	LastActivity       time.Time          `json:"last_activity"`
	Metrics            PerformanceMetrics `json:"metrics"`
	Config             map[string]string  `json:"config,omitempty"`
}

// Clone returns a deep copy of the instance.
func (a *AgentInstance) Clone() AgentInstance {
	out := *a
	out.Capabilities = a.Capabilities.Clone()
	if a.Config != nil {
		out.Config = make(map[string]string, len(a.Config))
		for k, v := range a.Config {
			out.Config[k] = v
		}
	}
	return out
}

// Available reports whether the agent can accept another task: under its
// concurrency limit and not parked in maintenance or error. A working agent
// with spare capacity keeps accepting tasks up to the limit.
func (a *AgentInstance) Available() bool {
	switch a.State {
	case StateIdle, StateWorking:
		return a.Workload < a.MaxConcurrentTasks
	default:
		return false
	}
}
