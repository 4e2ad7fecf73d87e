// Package permission maps reviewer roles to the actions they may perform.
package permission

import (
	"strings"

	"shotreview/pkg/domain"
)

// Action is a capability checked before a store mutation.
type Action string

const (
	DeleteScreenshot Action = "screenshot.delete"
	ClearScreenshots Action = "screenshot.clear"
	Resolve          Action = "screenshot.resolve"
	DeleteAnyComment Action = "comment.delete_any"
	DeleteOwnComment Action = "comment.delete_own"
	ManageTags       Action = "tag.manage"
	ApplyAnyTag      Action = "tag.apply_any"
	ApplyClientTag   Action = "tag.apply_client"
)

var table = map[domain.Role]map[Action]bool{
	domain.RoleAdmin: {
		DeleteScreenshot: true,
		ClearScreenshots: true,
		Resolve:          true,
		DeleteAnyComment: true,
		DeleteOwnComment: true,
		ManageTags:       true,
		ApplyAnyTag:      true,
		ApplyClientTag:   true,
	},
	domain.RoleClient: {
		DeleteOwnComment: true,
		ApplyClientTag:   true,
	},
}

// ParseRole accepts only the known roles.
func ParseRole(raw string) (domain.Role, bool) {
	role := domain.Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := table[role]; !ok {
		return "", false
	}
	return role, true
}

// Allows reports whether role may perform action. Unknown roles may do nothing.
func Allows(role domain.Role, action Action) bool {
	return table[role][action]
}

// CanDelete is the collaborator-facing canDelete flag for a role.
func CanDelete(role domain.Role) bool {
	return Allows(role, DeleteScreenshot)
}

// CanApplyTag reports whether role may add or remove tag on a screenshot.
func CanApplyTag(role domain.Role, tag domain.Tag) bool {
	if Allows(role, ApplyAnyTag) {
		return true
	}
	return tag.ClientVisible && Allows(role, ApplyClientTag)
}

// CanSeeTag reports whether tag is listed for role.
func CanSeeTag(role domain.Role, tag domain.Tag) bool {
	return CanApplyTag(role, tag)
}

// CanDeleteComment reports whether user may remove c. Ownership is by
// display name, the only identity the auth collaborator provides.
func CanDeleteComment(user domain.User, c domain.Comment) bool {
	if Allows(user.Role, DeleteAnyComment) {
		return true
	}
	return Allows(user.Role, DeleteOwnComment) && user.Name != "" && c.Author == user.Name
}
