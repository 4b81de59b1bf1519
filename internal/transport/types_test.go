package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	blocked := &SendFailure{Kind: FailureBlocked, Err: errors.New("forbidden")}

	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"direct failure", blocked, FailureBlocked},
		{"wrapped failure", fmt.Errorf("sending: %w", blocked), FailureBlocked},
		{"plain error", errors.New("boom"), FailureOther},
		{"nil", nil, FailureOther},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%s: KindOf = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRoleIsPrivileged(t *testing.T) {
	t.Parallel()
	privileged := map[Role]bool{
		RoleCreator:       true,
		RoleAdministrator: true,
		RoleMember:        false,
		RoleRestricted:    false,
		RoleLeft:          false,
		RoleKicked:        false,
	}
	for role, want := range privileged {
		if got := role.IsPrivileged(); got != want {
			t.Errorf("%s.IsPrivileged() = %v, want %v", role, got, want)
		}
	}
}
