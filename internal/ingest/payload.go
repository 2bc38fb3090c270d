package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"meshview/internal/domain"
)

// noParent is the firmware's sentinel for a root node's parent field
const noParent = "null"

// MessageTypePong is the type tag of a probe reply
const MessageTypePong = "pong"

// Pong is a probe reply from a node
type Pong struct {
	ID string
}

// wireMessage is the union of every inbound payload shape. Pointer and raw
// fields distinguish "absent" from "zero".
type wireMessage struct {
	Type     string          `json:"type"`
	ID       *string         `json:"id"`
	MAC      *string         `json:"mac"`
	Parent   json.RawMessage `json:"parent"`
	Hops     *int            `json:"hops"`
	Children []string        `json:"children"`
	Target   *string         `json:"target"`
}

// Decode parses a bus payload into either a domain.Announcement or a Pong.
//
// Announcements need id (or the firmware's "mac"), parent and hops; children
// may be omitted. The parent may be JSON null, an empty string or "null" for
// a root node.
func Decode(payload []byte) (any, error) {
	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	id, hasID := w.nodeID()

	switch w.Type {
	case MessageTypePong:
		if !hasID {
			return nil, fmt.Errorf("%w: pong without id", ErrMalformedInput)
		}
		return Pong{ID: id}, nil
	case "":
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedInput, w.Type)
	}

	if w.Target != nil {
		return nil, fmt.Errorf("%w: command echo for %q", ErrMalformedInput, *w.Target)
	}

	var missing []string
	if !hasID {
		missing = append(missing, "id")
	}
	if len(w.Parent) == 0 {
		missing = append(missing, "parent")
	}
	if w.Hops == nil {
		missing = append(missing, "hops")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedInput, strings.Join(missing, ", "))
	}

	parent, err := decodeParent(w.Parent)
	if err != nil {
		return nil, err
	}
	if *w.Hops < 0 {
		return nil, fmt.Errorf("%w: negative hops %d", ErrMalformedInput, *w.Hops)
	}
	if id == domain.RouterID || parent == domain.RouterID {
		return nil, fmt.Errorf("%w: %s is reserved", ErrMalformedInput, domain.RouterID)
	}
	if parent == id {
		return nil, fmt.Errorf("%w: %s names itself as parent", ErrMalformedInput, id)
	}

	children := make([]string, 0, len(w.Children))
	seen := make(map[string]bool, len(w.Children))
	for _, c := range w.Children {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		children = append(children, c)
	}

	return domain.Announcement{
		ID:       id,
		Parent:   parent,
		Hops:     *w.Hops,
		Children: children,
	}, nil
}

func (w wireMessage) nodeID() (string, bool) {
	for _, candidate := range []*string{w.ID, w.MAC} {
		if candidate == nil {
			continue
		}
		if id := strings.TrimSpace(*candidate); id != "" {
			return id, true
		}
	}
	return "", false
}

func decodeParent(raw json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var parent string
	if err := json.Unmarshal(raw, &parent); err != nil {
		return "", fmt.Errorf("%w: parent must be a string: %v", ErrMalformedInput, err)
	}
	parent = strings.TrimSpace(parent)
	if parent == noParent {
		return "", nil
	}
	return parent, nil
}
