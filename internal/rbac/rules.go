package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"user": {
		"assessment:view",
		"assessment:submit",
		"assessment:assign-peer",
		"assessment:validate",
		"assessment:testimony",
		"assessment:print",
	},
	"admin": {
		"*", // everything
	},
}
