package domain

// Announcement is a node's periodic self-report after validation.
// An empty Parent means the node declared itself root.
type Announcement struct {
	ID       string
	Parent   string
	Hops     int
	Children []string
}

// IsRoot reports whether the announcer declared no parent
func (a Announcement) IsRoot() bool {
	return a.Parent == ""
}
