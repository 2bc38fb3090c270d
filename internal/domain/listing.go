package domain

import "fmt"

// ActiveNode is one row of the active-node listing
type ActiveNode struct {
	ID   string `json:"id"`
	Hops *int   `json:"hops,omitempty"`
	Role Role   `json:"role"`
}

// Label renders the row the way the operator listing shows it
func (a ActiveNode) Label() string {
	hops := "?"
	if a.Hops != nil {
		hops = fmt.Sprintf("%d", *a.Hops)
	}
	if a.Role == RoleRoot {
		return fmt.Sprintf("%s ROOT (Hop %s)", a.ID, hops)
	}
	return fmt.Sprintf("%s CHILD (Hop %s)", a.ID, hops)
}

// ListingEqual compares two listings row by row
func ListingEqual(a, b []ActiveNode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Role != b[i].Role {
			return false
		}
		ha, hb := a[i].Hops, b[i].Hops
		if (ha == nil) != (hb == nil) {
			return false
		}
		if ha != nil && *ha != *hb {
			return false
		}
	}
	return true
}
