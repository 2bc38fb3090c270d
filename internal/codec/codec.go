// Package codec exports topology frames as JSON or YAML documents.
package codec

import (
	"fmt"
	"io"
	"time"

	"meshview/internal/domain"
)

// Exporter writes a frame in one format
type Exporter interface {
	Export(frame domain.Frame, w io.Writer) error
	Format() string
	ContentType() string
}

// Document is the exported form of a frame: one flat record per node
type Document struct {
	TakenAt time.Time    `json:"taken_at" yaml:"taken_at"`
	Nodes   []NodeRecord `json:"nodes" yaml:"nodes"`
}

// NodeRecord joins a node with its parent, position and latency
type NodeRecord struct {
	ID        string   `json:"id" yaml:"id"`
	Role      string   `json:"role" yaml:"role"`
	Hops      *int     `json:"hops,omitempty" yaml:"hops,omitempty"`
	Parent    string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	X         float64  `json:"x" yaml:"x"`
	Y         float64  `json:"y" yaml:"y"`
	LatencyMS *float64 `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
}

// NewDocument flattens frame into records ordered by node id
func NewDocument(frame domain.Frame) Document {
	snap := frame.Snapshot
	doc := Document{TakenAt: snap.TakenAt, Nodes: make([]NodeRecord, 0, len(snap.Nodes))}

	for _, id := range snap.IDs() {
		node, _ := snap.Node(id)
		rec := NodeRecord{
			ID:   id,
			Role: string(node.Role()),
			Hops: node.Hops,
		}
		if parent, ok := snap.Parent(id); ok {
			rec.Parent = parent
		}
		if pos, ok := frame.Positions[id]; ok {
			rec.X, rec.Y = pos.X, pos.Y
		}
		if l, ok := frame.Latencies[id]; ok {
			ms := l.Milliseconds()
			rec.LatencyMS = &ms
		}
		doc.Nodes = append(doc.Nodes, rec)
	}
	return doc
}

// ForFormat returns the exporter for format ("json" or "yaml")
func ForFormat(format string) (Exporter, error) {
	switch format {
	case "json":
		return NewJSONCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}
