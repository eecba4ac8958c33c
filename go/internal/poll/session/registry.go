package session

import (
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// Identity is the role and name a connection registered with
type Identity struct {
	ConnectionID string
	DisplayName  string
	Role         models.Role
	JoinedAt     time.Time
}

// JoinResult describes what a join did to the registry
type JoinResult struct {
	Joined bool
	// PresenceChanged is set when the participant set or its order changed
	PresenceChanged bool
	// Superseded holds the connection that previously owned the participant name
	Superseded string
}

// Registry maps connections to identities. Participant names are unique:
// at most one live connection owns a given participant name.
// Not safe for concurrent use; it is owned by the core loop.
type Registry struct {
	identities   map[string]*Identity
	participants map[string]string
	order        []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		identities:   make(map[string]*Identity),
		participants: make(map[string]string),
	}
}

// Join records the mapping for connectionID. A participant joining under a
// name another connection owns evicts the older connection, which models a
// client reconnecting with a fresh transport. Empty names are ignored.
func (r *Registry) Join(connectionID string, role models.Role, displayName string, now time.Time) JoinResult {
	var result JoinResult
	if connectionID == "" || displayName == "" {
		return result
	}

	if existing, ok := r.identities[connectionID]; ok {
		if existing.Role == role && existing.DisplayName == displayName {
			result.Joined = true
			return result
		}
		if r.Leave(connectionID) {
			result.PresenceChanged = true
		}
	}

	identity := &Identity{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		Role:         role,
		JoinedAt:     now,
	}

	if role == models.RoleParticipant {
		if previous, ok := r.participants[displayName]; ok && previous != connectionID {
			delete(r.identities, previous)
			r.removeFromOrder(displayName)
			result.Superseded = previous
		}
		r.participants[displayName] = connectionID
		r.order = append(r.order, displayName)
		result.PresenceChanged = true
	}

	r.identities[connectionID] = identity
	result.Joined = true
	return result
}

// Leave drops the mapping for connectionID. The participant name is only
// released when this connection is still the one owning it. Reports whether
// the presence set changed.
func (r *Registry) Leave(connectionID string) bool {
	identity, ok := r.identities[connectionID]
	if !ok {
		return false
	}
	delete(r.identities, connectionID)

	if identity.Role != models.RoleParticipant {
		return false
	}
	if owner, ok := r.participants[identity.DisplayName]; !ok || owner != connectionID {
		return false
	}
	delete(r.participants, identity.DisplayName)
	r.removeFromOrder(identity.DisplayName)
	return true
}

// Lookup returns a copy of the identity bound to connectionID
func (r *Registry) Lookup(connectionID string) (Identity, bool) {
	identity, ok := r.identities[connectionID]
	if !ok {
		return Identity{}, false
	}
	return *identity, true
}

// ConnectionFor returns the connection currently owning a participant name
func (r *Registry) ConnectionFor(displayName string) (string, bool) {
	connectionID, ok := r.participants[displayName]
	return connectionID, ok
}

// Presence returns participant names in join order
func (r *Registry) Presence() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// IsPresent reports whether a participant name is connected
func (r *Registry) IsPresent(displayName string) bool {
	_, ok := r.participants[displayName]
	return ok
}

// Counts returns the number of participant and moderator connections
func (r *Registry) Counts() (participants, moderators int) {
	for _, identity := range r.identities {
		if identity.Role == models.RoleModerator {
			moderators++
		} else {
			participants++
		}
	}
	return participants, moderators
}

func (r *Registry) removeFromOrder(displayName string) {
	for i, name := range r.order {
		if name == displayName {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
