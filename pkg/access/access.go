// Package access decides read/write/delete permission for a (group, user)
// pair. It is pure: no I/O, no process-wide state, and an invalid or missing
// address always evaluates to false.
package access

import (
	"github.com/concordia-save/concordia/pkg/models"
)

// Evaluator holds the platform admin address injected at startup.
type Evaluator struct {
	adminAddress string
}

// NewEvaluator creates an Evaluator. An empty admin address disables the
// admin override entirely.
func NewEvaluator(adminAddress string) Evaluator {
	return Evaluator{adminAddress: models.NormalizeAddress(adminAddress)}
}

// IsAdmin reports whether the address is the configured platform admin.
func (e Evaluator) IsAdmin(addr string) bool {
	addr = models.NormalizeAddress(addr)
	return addr != "" && addr == e.adminAddress
}

// IsCreator reports whether the address created the group.
func (e Evaluator) IsCreator(group *models.Group, addr string) bool {
	addr = models.NormalizeAddress(addr)
	return addr != "" && addr == models.NormalizeAddress(group.Creator)
}

// HasReadAccess reports whether the address may see the group: the admin,
// the creator, or any listed member.
func (e Evaluator) HasReadAccess(group *models.Group, addr string) bool {
	if group == nil {
		return false
	}
	if models.NormalizeAddress(addr) == "" {
		return false
	}
	return e.IsAdmin(addr) || e.IsCreator(group, addr) || group.HasMember(addr)
}

// HasWriteAccess reports whether the address may mutate the group. Plain
// members cannot write; they join and contribute through dedicated
// operations instead.
func (e Evaluator) HasWriteAccess(group *models.Group, addr string) bool {
	if group == nil {
		return false
	}
	return e.IsAdmin(addr) || e.IsCreator(group, addr)
}

// HasDeleteAccess reports whether the address may delete the group. Same
// rule as writes: admin or creator only.
func (e Evaluator) HasDeleteAccess(group *models.Group, addr string) bool {
	return e.HasWriteAccess(group, addr)
}
