// Package graphviz converts flat fact lists into the node/link shape the
// visualization client renders.
package graphviz

import (
	"mnemos/backend/internal/knowledge"
)

// Node is one entity in the rendered graph. ID and Label are both the
// entity's label; Type is a single default for now.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Link is one directed predicate edge between two entities
type Link struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Graph is the transform output
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

const defaultNodeType = "entity"

// Transform builds a deduplicated graph from a fact list. Each entity label
// maps to exactly one node no matter how many facts mention it; every fact
// contributes exactly one link, so no node is ever created without an
// adjacent link.
func Transform(facts []knowledge.Fact) Graph {
	seen := make(map[string]struct{}, len(facts)*2)
	graph := Graph{
		Nodes: make([]Node, 0, len(facts)*2),
		Links: make([]Link, 0, len(facts)),
	}

	addNode := func(label string) {
		if _, ok := seen[label]; ok {
			return
		}
		seen[label] = struct{}{}
		graph.Nodes = append(graph.Nodes, Node{
			ID:    label,
			Label: label,
			Type:  defaultNodeType,
		})
	}

	for _, fact := range facts {
		addNode(fact.Subject)
		addNode(fact.Object)
		graph.Links = append(graph.Links, Link{
			Source:     fact.Subject,
			Target:     fact.Object,
			Label:      fact.Predicate,
			Confidence: fact.Confidence,
		})
	}

	return graph
}
