// Package policy decides which capabilities a user holds over board resources.
// Roles form a flat two-tier model: managers and admins are privileged,
// developers are not. There is no hierarchy beyond that split.
package policy

type Role string

const (
	RoleDeveloper Role = "developer"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated identity a capability check runs against.
// A zero Actor (empty ID) represents an unauthenticated caller and is
// denied every capability.
type Actor struct {
	ID   string
	Role Role
}

// StoryRef carries the ownership fields a story-level check needs.
type StoryRef struct {
	ID      string
	OwnerID string
}

func privileged(role Role) bool {
	return role == RoleManager || role == RoleAdmin
}

// CanEditStory allows privileged roles to edit any story and developers to
// edit stories they own.
func CanEditStory(actor Actor, story StoryRef) bool {
	if actor.ID == "" {
		return false
	}
	if privileged(actor.Role) {
		return true
	}
	return story.OwnerID != "" && story.OwnerID == actor.ID
}

// CanDeleteStory allows privileged roles only.
func CanDeleteStory(actor Actor) bool {
	return actor.ID != "" && privileged(actor.Role)
}

// CanArchiveStory allows privileged roles only.
func CanArchiveStory(actor Actor) bool {
	return actor.ID != "" && privileged(actor.Role)
}

// CanViewAnalytics allows privileged roles only.
func CanViewAnalytics(actor Actor) bool {
	return actor.ID != "" && privileged(actor.Role)
}

// Normalize coerces an arbitrary role string to a known role, defaulting to
// the least-privileged one.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleDeveloper, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleDeveloper
	}
}
