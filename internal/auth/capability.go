package auth

import "github.com/fleetwatch/fleetwatch/internal/domain"

// Capability names one protected operation from the endpoint table of
// spec.md §6. Handlers declare the Capability they need; Allow checks
// it against the resolved Principal.
type Capability string

const (
	CapReadOnly          Capability = "read"
	CapAcknowledgeAlert  Capability = "alert:acknowledge"
	CapResolveAlert      Capability = "alert:resolve"
	CapStartExecution    Capability = "execution:start"
	CapCancelExecution   Capability = "execution:cancel"
	CapCompleteExecution Capability = "execution:complete"
	CapIngestLog         Capability = "logs:write"
	CapHeartbeat         Capability = "heartbeat:write"
	CapRegisterJob       Capability = "jobs:write"
	CapRunRetention      Capability = "retention:run"
	CapManageAuth        Capability = "auth:manage"
)

// roleCapabilities encodes spec.md §6's role->capability table:
// Viewer is read-only; Operator additionally acknowledges/resolves
// alerts and starts/cancels executions; Administrator is full.
var roleCapabilities = map[domain.Role]map[Capability]bool{
	domain.RoleViewer: {
		CapReadOnly: true,
	},
	domain.RoleOperator: {
		CapReadOnly:         true,
		CapAcknowledgeAlert: true,
		CapResolveAlert:     true,
		CapStartExecution:   true,
		CapCancelExecution:  true,
		CapRegisterJob:      true,
	},
	domain.RoleAdministrator: {
		CapReadOnly:          true,
		CapAcknowledgeAlert:  true,
		CapResolveAlert:      true,
		CapStartExecution:    true,
		CapCancelExecution:   true,
		CapCompleteExecution: true,
		CapIngestLog:         true,
		CapHeartbeat:         true,
		CapRegisterJob:       true,
		CapRunRetention:      true,
		CapManageAuth:        true,
	},
}

// serviceScopeCapability maps an APIKey scope string to the
// Capability it grants, per spec.md §6's "agent keys are scoped, e.g.
// logs:write" example — scope strings and Capability values share the
// same vocabulary by design.
var serviceScopeCapability = map[string]Capability{
	"logs:write":         CapIngestLog,
	"heartbeat:write":    CapHeartbeat,
	"jobs:write":         CapRegisterJob,
	"execution:start":    CapStartExecution,
	"execution:complete": CapCompleteExecution,
	"execution:cancel":   CapCancelExecution,
}

// Allow reports whether p is permitted to exercise cap.
func Allow(p Principal, cap Capability) bool {
	switch principal := p.(type) {
	case UserPrincipal:
		return roleCapabilities[principal.Role][cap]
	case ServicePrincipal:
		for _, scope := range principal.Scope {
			if serviceScopeCapability[scope] == cap {
				return true
			}
		}
		return false
	default:
		return false
	}
}
