package rbac

import "timeline-service/pkg/config"

const (
	PermissionViewTimeline  = "timeline:view"
	PermissionEditMilestone = "milestone:edit"
	PermissionAdminOutbox   = "outbox:admin"
)

const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

var rolePermissions = map[string][]string{
	RoleViewer: {
		PermissionViewTimeline,
	},
	RoleEditor: {
		PermissionViewTimeline,
		PermissionEditMilestone,
	},
	RoleAdmin: {
		PermissionViewTimeline,
		PermissionEditMilestone,
		PermissionAdminOutbox,
	},
}

// RoleResolver maps a user to a role
type RoleResolver func(userID int) string

// Checker resolves roles and answers permission checks
type Checker struct {
	resolve RoleResolver
}

// NewChecker uses resolve to look up roles; nil means every user is an editor
func NewChecker(resolve RoleResolver) *Checker {
	if resolve == nil {
		resolve = func(int) string { return RoleEditor }
	}
	return &Checker{resolve: resolve}
}

// StaticRoles resolves roles from a fixed user id table, defaulting to fallback
func StaticRoles(roles map[int]string, fallback string) RoleResolver {
	return func(userID int) string {
		if role, ok := roles[userID]; ok {
			return role
		}
		return fallback
	}
}

// FromConfig builds a StaticRoles resolver from cfg. A user listed under
// several roles gets the strongest one.
func FromConfig(cfg config.RBACConfig) RoleResolver {
	roles := make(map[int]string)
	for _, id := range cfg.ViewerUserIDs {
		roles[id] = RoleViewer
	}
	for _, id := range cfg.EditorUserIDs {
		roles[id] = RoleEditor
	}
	for _, id := range cfg.AdminUserIDs {
		roles[id] = RoleAdmin
	}

	fallback := cfg.DefaultRole
	if fallback == "" {
		fallback = RoleEditor
	}
	return StaticRoles(roles, fallback)
}

func (c *Checker) HasPermission(userID int, permission string) bool {
	permissions, ok := rolePermissions[c.resolve(userID)]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission is HasPermission returning a *PermissionDeniedError
func (c *Checker) CheckPermission(userID int, permission string) error {
	if !c.HasPermission(userID, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Permission: permission,
		}
	}
	return nil
}

type PermissionDeniedError struct {
	UserID     int
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}
