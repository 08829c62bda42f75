package websocket

// Presence answers who is online in a room without exposing the
// registry's mutators.
type Presence struct {
	registry *Registry
}

func NewPresence(registry *Registry) *Presence {
	return &Presence{registry: registry}
}

func (p *Presence) OnlineUserIDs(roomID int) []int {
	return p.registry.Members(roomID)
}

func (p *Presence) IsUserOnline(roomID, userID int) bool {
	return p.registry.IsOnline(roomID, userID)
}

// OnlineSet is OnlineUserIDs as a lookup set, for rendering member lists
// with online badges.
func (p *Presence) OnlineSet(roomID int) map[int]bool {
	ids := p.registry.Members(roomID)
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
