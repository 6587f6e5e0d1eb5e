package model

import (
	"sort"
	"strings"
)

// Permission is a named capability a tool requires and a caller holds.
// The vocabulary is closed: anything outside it is rejected at parse time.
type Permission string

const (
	PermFilesystemRead  Permission = "filesystem:read"
	PermFilesystemWrite Permission = "filesystem:write"
	PermNetworkInternal Permission = "network:internal"
	PermNetworkExternal Permission = "network:external"
	PermDatabaseRead    Permission = "database:read"
	PermDatabaseWrite   Permission = "database:write"
	PermProcessExecute  Permission = "process:execute"
	PermSystemInfo      Permission = "system:info"
	PermSystemConfig    Permission = "system:config"
)

var allPermissions = map[Permission]bool{
	PermFilesystemRead:  true,
	PermFilesystemWrite: true,
	PermNetworkInternal: true,
	PermNetworkExternal: true,
	PermDatabaseRead:    true,
	PermDatabaseWrite:   true,
	PermProcessExecute:  true,
	PermSystemInfo:      true,
	PermSystemConfig:    true,
}

// DangerousPermissions are capabilities whose combination in one plugin
// package gets flagged during load-time review.
var DangerousPermissions = map[Permission]bool{
	PermFilesystemWrite: true,
	PermNetworkExternal: true,
	PermProcessExecute:  true,
	PermDatabaseWrite:   true,
	PermSystemConfig:    true,
}

// ParsePermission validates a permission string against the closed vocabulary.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	return p, allPermissions[p]
}

// MissingPermissions returns the required permissions not covered by
// granted, sorted for stable reporting. Empty result means required ⊆ granted.
func MissingPermissions(required, granted []Permission) []Permission {
	have := make(map[Permission]bool, len(granted))
	for _, p := range granted {
		have[p] = true
	}
	var missing []Permission
	for _, p := range required {
		if !have[p] {
			missing = append(missing, p)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// PermissionStrings converts a permission slice for display and serialization.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
