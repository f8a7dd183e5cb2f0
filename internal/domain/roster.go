package domain

import "slices"

// Roster is the set of remote participants seen in a room.
// Order of insertion matters: the first entrant decides who offers.
type Roster struct {
	ids []ClientID
}

func NewRoster(ids ...ClientID) *Roster {
	r := &Roster{}
	for _, id := range ids {
		r.Add(id)
	}
	return r
}

// Add appends id unless it is already present. It reports whether the roster changed.
func (r *Roster) Add(id ClientID) bool {
	if id == "" || r.Contains(id) {
		return false
	}
	r.ids = append(r.ids, id)
	return true
}

func (r *Roster) Remove(id ClientID) bool {
	i := slices.Index(r.ids, id)
	if i < 0 {
		return false
	}
	r.ids = slices.Delete(r.ids, i, i+1)
	return true
}

func (r *Roster) Contains(id ClientID) bool {
	return slices.Contains(r.ids, id)
}

// First returns the earliest entrant, ok is false on an empty roster.
func (r *Roster) First() (ClientID, bool) {
	if len(r.ids) == 0 {
		return "", false
	}
	return r.ids[0], true
}

func (r *Roster) Len() int { return len(r.ids) }

func (r *Roster) IDs() []ClientID { return slices.Clone(r.ids) }

func (r *Roster) Clone() *Roster {
	return &Roster{ids: slices.Clone(r.ids)}
}
