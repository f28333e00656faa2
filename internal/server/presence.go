package server

// Presence answers whether a user currently holds a live connection. It is
// derived from the registry and keeps no state of its own.
type Presence interface {
	IsActive(userId string) bool
	ActiveUserIds() map[string]struct{}
}

// anyActive reports whether at least one of ids is in the active set.
func anyActive(active map[string]struct{}, ids []string) bool {
	for _, id := range ids {
		if _, ok := active[id]; ok {
			return true
		}
	}
	return false
}
