package chat

import (
	"regexp"
	"sort"
	"strings"
)

// SystemOwner owns the seeded public rooms.
const SystemOwner = "system"

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeID derives a room id from user-supplied text: lower-cased, with
// whitespace runs replaced by "-". Distinct labels may collide.
func NormalizeID(s string) string {
	id := whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	if id == "" {
		return "unnamed"
	}
	return id
}

// DirectID is the canonical id of the direct room between a and b.
func DirectID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

func directLabel(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, " and ")
}

// DefaultRooms are the public rooms every server starts with.
func DefaultRooms() []Room {
	return []Room{
		{ID: "general", Label: "General", Kind: KindPublic, Owner: SystemOwner},
		{ID: "sports", Label: "Sports", Kind: KindPublic, Owner: SystemOwner},
		{ID: "music", Label: "Music", Kind: KindPublic, Owner: SystemOwner},
	}
}

// Directory owns every room. Rooms are never removed.
type Directory struct {
	rooms map[string]*Room
	order []string
}

// NewDirectory returns a directory pre-populated with seed.
func NewDirectory(seed ...Room) *Directory {
	d := &Directory{rooms: make(map[string]*Room)}
	for i := range seed {
		r := seed[i].clone()
		d.put(&r)
	}
	return d
}

func (d *Directory) put(r *Room) {
	if r.Members == nil {
		r.Members = []string{}
	}
	if r.PendingRequests == nil {
		r.PendingRequests = []JoinRequest{}
	}
	d.rooms[r.ID] = r
	d.order = append(d.order, r.ID)
}

// CreatePublicOrGroup creates a public or group room. It reports false when
// the id is taken or kind is direct.
func (d *Directory) CreatePublicOrGroup(id, label string, kind Kind, creator string) (Room, bool) {
	if kind != KindPublic && kind != KindGroup {
		return Room{}, false
	}
	if _, exists := d.rooms[id]; exists {
		return Room{}, false
	}

	r := &Room{ID: id, Label: label, Kind: kind, Owner: creator}
	if kind == KindGroup {
		r.Members = []string{creator}
	}
	d.put(r)
	return r.clone(), true
}

// CreateDirect returns the direct room for the unordered pair {a, b},
// creating it on first use.
func (d *Directory) CreateDirect(a, b string) (Room, bool) {
	id := DirectID(a, b)
	if r, ok := d.rooms[id]; ok {
		return r.clone(), false
	}

	r := &Room{
		ID:      id,
		Label:   directLabel(a, b),
		Kind:    KindDirect,
		Owner:   a,
		Members: []string{a, b},
	}
	d.put(r)
	return r.clone(), true
}

// Get returns a snapshot of the room with the given id.
func (d *Directory) Get(id string) (Room, bool) {
	r, ok := d.rooms[id]
	if !ok {
		return Room{}, false
	}
	return r.clone(), true
}

// GroupRoomsFor lists the group rooms user belongs to, in creation order.
func (d *Directory) GroupRoomsFor(user string) []Room {
	out := []Room{}
	for _, id := range d.order {
		r := d.rooms[id]
		if r.Kind == KindGroup && r.HasMember(user) {
			out = append(out, r.clone())
		}
	}
	return out
}

func (d *Directory) lookup(id string) (*Room, bool) {
	r, ok := d.rooms[id]
	return r, ok
}

// ownedBy walks the rooms owned by user in creation order.
func (d *Directory) ownedBy(user string, fn func(*Room) bool) {
	for _, id := range d.order {
		r := d.rooms[id]
		if r.Owner != user {
			continue
		}
		if !fn(r) {
			return
		}
	}
}
