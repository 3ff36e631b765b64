package permission

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned for a role name outside the configured order.
var ErrUnknownRole = errors.New("unknown role")

// Hierarchy is an immutable total order of roles with cumulative permission
// sets. It is safe for concurrent use.
type Hierarchy struct {
	registry *Registry
	order    []string
	rank     map[string]int
	masks    []Mask64
}

// NewHierarchy builds a hierarchy from roles (lowest first) and the
// permissions each role adds on top of the roles below it. Every key of grants
// must be a listed role.
func NewHierarchy(roles []string, grants map[string][]string) (*Hierarchy, error) {
	if len(roles) == 0 {
		return nil, errors.New("role hierarchy is empty")
	}

	h := &Hierarchy{
		registry: NewRegistry(),
		order:    append([]string(nil), roles...),
		rank:     make(map[string]int, len(roles)),
		masks:    make([]Mask64, len(roles)),
	}

	for i, role := range roles {
		if role == "" {
			return nil, errors.New("role name cannot be empty")
		}
		if _, dup := h.rank[role]; dup {
			return nil, fmt.Errorf("duplicate role %q", role)
		}
		h.rank[role] = i
	}

	for role := range grants {
		if _, ok := h.rank[role]; !ok {
			return nil, fmt.Errorf("permissions granted to %w %q", ErrUnknownRole, role)
		}
	}

	var cumulative Mask64
	for i, role := range roles {
		for _, name := range grants[role] {
			bit, err := h.registry.Register(name)
			if err != nil {
				return nil, fmt.Errorf("register permission %q: %w", name, err)
			}
			cumulative.Set(bit)
		}
		h.masks[i] = cumulative
	}
	h.registry.Freeze()

	return h, nil
}

// Roles returns the role order, lowest first.
func (h *Hierarchy) Roles() []string {
	return append([]string(nil), h.order...)
}

// Top returns the highest role.
func (h *Hierarchy) Top() string {
	return h.order[len(h.order)-1]
}

// Rank returns the position of role in the order.
func (h *Hierarchy) Rank(role string) (int, bool) {
	r, ok := h.rank[role]
	return r, ok
}

// Known reports whether role is part of the order.
func (h *Hierarchy) Known(role string) bool {
	_, ok := h.rank[role]
	return ok
}

// Satisfies reports whether actual ranks at or above required. Unknown roles
// never satisfy and are never satisfied.
func (h *Hierarchy) Satisfies(actual, required string) bool {
	a, ok := h.rank[actual]
	if !ok {
		return false
	}
	r, ok := h.rank[required]
	if !ok {
		return false
	}
	return a >= r
}

// CanModifyRole reports whether actor may move a target from targetCurrent
// to targetNew. The new role must rank strictly below the actor, and only
// the top role may change the role of a top-role target.
func (h *Hierarchy) CanModifyRole(actor, targetCurrent, targetNew string) bool {
	actorRank, ok := h.rank[actor]
	if !ok {
		return false
	}
	currentRank, ok := h.rank[targetCurrent]
	if !ok {
		return false
	}
	newRank, ok := h.rank[targetNew]
	if !ok {
		return false
	}

	top := len(h.order) - 1
	if newRank >= actorRank {
		return false
	}
	if currentRank == top && actorRank != top {
		return false
	}
	return true
}

// Mask returns the cumulative permission mask of role.
func (h *Hierarchy) Mask(role string) (Mask64, bool) {
	r, ok := h.rank[role]
	if !ok {
		return 0, false
	}
	return h.masks[r], true
}

// PermissionsOf returns the cumulative permission names of role, or nil for
// an unknown role.
func (h *Hierarchy) PermissionsOf(role string) []string {
	mask, ok := h.Mask(role)
	if !ok {
		return nil
	}
	return h.registry.Names(mask)
}

// HasPermission reports whether role holds perm.
func (h *Hierarchy) HasPermission(role, perm string) bool {
	mask, ok := h.Mask(role)
	if !ok {
		return false
	}
	bit, ok := h.registry.Bit(perm)
	if !ok {
		return false
	}
	return mask.Has(bit)
}
