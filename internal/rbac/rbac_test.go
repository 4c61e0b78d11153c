package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer edit", role: RoleViewer, action: ActionEdit, allow: false},
		{name: "viewer regenerate", role: RoleViewer, action: ActionRegenerate, allow: false},
		{name: "editor edit", role: RoleEditor, action: ActionEdit, allow: true},
		{name: "editor regenerate", role: RoleEditor, action: ActionRegenerate, allow: true},
		{name: "editor seed", role: RoleEditor, action: ActionSeed, allow: false},
		{name: "admin seed", role: RoleAdmin, action: ActionSeed, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor {
		t.Fatal("editor should be kept")
	}
	if Normalize("commenter") != RoleViewer {
		t.Fatal("unknown roles should fall back to viewer")
	}
}
