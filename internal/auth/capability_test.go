package auth

import (
	"testing"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

func TestAllow_RoleTable(t *testing.T) {
	tests := []struct {
		role domain.Role
		cap  Capability
		want bool
	}{
		{domain.RoleViewer, CapReadOnly, true},
		{domain.RoleViewer, CapAcknowledgeAlert, false},
		{domain.RoleViewer, CapRunRetention, false},
		{domain.RoleOperator, CapReadOnly, true},
		{domain.RoleOperator, CapAcknowledgeAlert, true},
		{domain.RoleOperator, CapResolveAlert, true},
		{domain.RoleOperator, CapStartExecution, true},
		{domain.RoleOperator, CapCancelExecution, true},
		{domain.RoleOperator, CapRunRetention, false},
		{domain.RoleAdministrator, CapReadOnly, true},
		{domain.RoleAdministrator, CapRunRetention, true},
		{domain.RoleAdministrator, CapManageAuth, true},
		{domain.RoleAdministrator, CapIngestLog, true},
	}

	for _, tt := range tests {
		p := UserPrincipal{Role: tt.role}
		if got := Allow(p, tt.cap); got != tt.want {
			t.Errorf("Allow(%s, %s) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

func TestAllow_ServiceScope(t *testing.T) {
	p := ServicePrincipal{Name: "agent-1", Scope: []string{"logs:write", "heartbeat:write"}}

	if !Allow(p, CapIngestLog) {
		t.Error("expected scoped ServicePrincipal to be allowed CapIngestLog")
	}
	if !Allow(p, CapHeartbeat) {
		t.Error("expected scoped ServicePrincipal to be allowed CapHeartbeat")
	}
	if Allow(p, CapRunRetention) {
		t.Error("expected ServicePrincipal without retention scope to be denied CapRunRetention")
	}
	if Allow(p, CapRegisterJob) {
		t.Error("expected ServicePrincipal without jobs:write scope to be denied CapRegisterJob")
	}
}

func TestServicePrincipal_HasScope(t *testing.T) {
	p := ServicePrincipal{Scope: []string{"logs:write"}}
	if !p.HasScope("logs:write") {
		t.Error("expected HasScope to find granted scope")
	}
	if p.HasScope("heartbeat:write") {
		t.Error("expected HasScope to reject ungranted scope")
	}
}
