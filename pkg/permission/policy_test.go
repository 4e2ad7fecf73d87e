package permission

import (
	"testing"

	"shotreview/pkg/domain"
)

func TestAllowsTable(t *testing.T) {
	tests := []struct {
		role   domain.Role
		action Action
		want   bool
	}{
		{domain.RoleAdmin, DeleteScreenshot, true},
		{domain.RoleAdmin, ClearScreenshots, true},
		{domain.RoleAdmin, Resolve, true},
		{domain.RoleAdmin, ManageTags, true},
		{domain.RoleAdmin, ApplyAnyTag, true},
		{domain.RoleClient, DeleteScreenshot, false},
		{domain.RoleClient, ClearScreenshots, false},
		{domain.RoleClient, Resolve, false},
		{domain.RoleClient, ManageTags, false},
		{domain.RoleClient, ApplyAnyTag, false},
		{domain.RoleClient, ApplyClientTag, true},
		{domain.RoleClient, DeleteOwnComment, true},
		{domain.Role("guest"), ApplyClientTag, false},
	}
	for _, tc := range tests {
		if got := Allows(tc.role, tc.action); got != tc.want {
			t.Fatalf("Allows(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if role, ok := ParseRole(" Admin "); !ok || role != domain.RoleAdmin {
		t.Fatalf("expected admin, got %q %v", role, ok)
	}
	if role, ok := ParseRole("client"); !ok || role != domain.RoleClient {
		t.Fatalf("expected client, got %q %v", role, ok)
	}
	if _, ok := ParseRole("owner"); ok {
		t.Fatalf("unknown role must be rejected")
	}
}

func TestCanApplyTag(t *testing.T) {
	visible := domain.Tag{ID: 1, Name: "Needs Review", ClientVisible: true}
	hidden := domain.Tag{ID: 2, Name: "Rejected"}

	if !CanApplyTag(domain.RoleAdmin, visible) || !CanApplyTag(domain.RoleAdmin, hidden) {
		t.Fatalf("admin must apply any tag")
	}
	if !CanApplyTag(domain.RoleClient, visible) {
		t.Fatalf("client must apply client visible tag")
	}
	if CanApplyTag(domain.RoleClient, hidden) {
		t.Fatalf("client must not apply admin-only tag")
	}
}

func TestCanDeleteComment(t *testing.T) {
	own := domain.Comment{ID: 1, Author: "The Thoughtful Father"}
	other := domain.Comment{ID: 2, Author: "Admin"}
	client := domain.User{Name: "The Thoughtful Father", Role: domain.RoleClient}
	admin := domain.User{Name: "Admin", Role: domain.RoleAdmin, CanDelete: true}

	if !CanDeleteComment(client, own) {
		t.Fatalf("client must delete own comment")
	}
	if CanDeleteComment(client, other) {
		t.Fatalf("client must not delete someone else's comment")
	}
	if !CanDeleteComment(admin, own) {
		t.Fatalf("admin must delete any comment")
	}
	if CanDeleteComment(domain.User{Role: domain.RoleClient}, domain.Comment{}) {
		t.Fatalf("anonymous client must not match empty author")
	}
}
