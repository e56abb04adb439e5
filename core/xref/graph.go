package xref

import (
	"fmt"
	"sort"

	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
)

// ReferenceGraph is the static dependency DAG between document types. An
// edge upstream -> downstream means the downstream document injects facts
// from the upstream type and must not be generated before it. The graph is
// validated once at construction; a cycle is a fatal configuration fault.
type ReferenceGraph struct {
	inEdges map[model.DocumentType][]model.DocumentType
}

// NewReferenceGraph builds a graph from per-type in-edge lists and validates
// it: every referenced type must be a node and the graph must be acyclic.
func NewReferenceGraph(inEdges map[model.DocumentType][]model.DocumentType) (*ReferenceGraph, error) {
	graph := &ReferenceGraph{inEdges: make(map[model.DocumentType][]model.DocumentType, len(inEdges))}
	for docType, upstreams := range inEdges {
		sorted := make([]model.DocumentType, len(upstreams))
		copy(sorted, upstreams)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		graph.inEdges[docType] = sorted
	}

	if err := graph.Validate(); err != nil {
		return nil, err
	}

	return graph, nil
}

// DefaultReferenceGraph returns the procurement document dependency graph.
// It panics on an invalid table, as that is a programming error that must
// surface at startup, not mid-run.
func DefaultReferenceGraph() *ReferenceGraph {
	graph, err := NewReferenceGraph(map[model.DocumentType][]model.DocumentType{
		model.DocTypeMarketResearch: {},
		model.DocTypeCostEstimate:   {model.DocTypeMarketResearch},
		model.DocTypeAcquisitionPlan: {
			model.DocTypeMarketResearch,
			model.DocTypeCostEstimate,
		},
		model.DocTypeStatementOfWork: {model.DocTypeAcquisitionPlan},
		model.DocTypeEvaluationScorecard: {
			model.DocTypeAcquisitionPlan,
			model.DocTypeStatementOfWork,
		},
		model.DocTypeSourceSelectionPlan: {
			model.DocTypeStatementOfWork,
			model.DocTypeEvaluationScorecard,
		},
	})
	if err != nil {
		panic(err)
	}
	return graph
}

// Has reports whether the document type is a node of the graph.
func (g *ReferenceGraph) Has(docType model.DocumentType) bool {
	_, ok := g.inEdges[docType]
	return ok
}

// InEdges returns the upstream document types required by docType, sorted
// for determinism.
func (g *ReferenceGraph) InEdges(docType model.DocumentType) []model.DocumentType {
	upstreams := g.inEdges[docType]
	result := make([]model.DocumentType, len(upstreams))
	copy(result, upstreams)
	return result
}

// Validate checks that every edge points at a known node and that the graph
// contains no cycle. It is called at construction so a broken dependency
// table fails fast, before any document generation attempt.
func (g *ReferenceGraph) Validate() error {
	for docType, upstreams := range g.inEdges {
		for _, upstream := range upstreams {
			if _, ok := g.inEdges[upstream]; !ok {
				return helper.NewError("graph validation", fmt.Errorf("document type %v references unknown type %v", docType, upstream))
			}
		}
	}

	// Cycle detection via DFS coloring.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[model.DocumentType]int, len(g.inEdges))

	var visit func(docType model.DocumentType) error
	visit = func(docType model.DocumentType) error {
		colors[docType] = gray
		for _, upstream := range g.inEdges[docType] {
			switch colors[upstream] {
			case gray:
				return helper.NewError("graph validation", fmt.Errorf("dependency cycle through %v and %v", docType, upstream))
			case white:
				if err := visit(upstream); err != nil {
					return err
				}
			}
		}
		colors[docType] = black
		return nil
	}

	nodes := g.nodes()
	for _, docType := range nodes {
		if colors[docType] == white {
			if err := visit(docType); err != nil {
				return err
			}
		}
	}

	return nil
}

// TopoOrder returns a stable topological order of the requested document
// types. Edges to types outside the requested set are ignored; those
// dependencies are checked against the store at scheduling time instead.
func (g *ReferenceGraph) TopoOrder(requested []model.DocumentType) ([]model.DocumentType, error) {
	layers, err := g.Layers(requested)
	if err != nil {
		return nil, err
	}

	var order []model.DocumentType
	for _, layer := range layers {
		order = append(order, layer...)
	}
	return order, nil
}

// Layers groups the requested document types into dependency levels: every
// type in a layer depends only on types in earlier layers, so siblings
// within one layer may be generated concurrently.
func (g *ReferenceGraph) Layers(requested []model.DocumentType) ([][]model.DocumentType, error) {
	inSet := make(map[model.DocumentType]bool, len(requested))
	for _, docType := range requested {
		if !g.Has(docType) {
			return nil, helper.NewError("layer computation", fmt.Errorf("unknown document type %v", docType))
		}
		inSet[docType] = true
	}

	// Kahn's algorithm over the restricted set, sorted per layer for
	// deterministic output.
	pending := make(map[model.DocumentType]int, len(inSet))
	for docType := range inSet {
		count := 0
		for _, upstream := range g.inEdges[docType] {
			if inSet[upstream] {
				count++
			}
		}
		pending[docType] = count
	}

	var layers [][]model.DocumentType
	remaining := len(pending)
	for remaining > 0 {
		var layer []model.DocumentType
		for docType, count := range pending {
			if count == 0 {
				layer = append(layer, docType)
			}
		}
		if len(layer) == 0 {
			return nil, helper.NewError("layer computation", fmt.Errorf("dependency cycle within requested set"))
		}
		sort.Slice(layer, func(i, j int) bool { return layer[i] < layer[j] })

		for _, docType := range layer {
			delete(pending, docType)
			remaining--
		}
		for docType := range pending {
			for _, upstream := range g.inEdges[docType] {
				if containsType(layer, upstream) {
					pending[docType]--
				}
			}
		}

		layers = append(layers, layer)
	}

	return layers, nil
}

func (g *ReferenceGraph) nodes() []model.DocumentType {
	nodes := make([]model.DocumentType, 0, len(g.inEdges))
	for docType := range g.inEdges {
		nodes = append(nodes, docType)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

func containsType(list []model.DocumentType, docType model.DocumentType) bool {
	for _, t := range list {
		if t == docType {
			return true
		}
	}
	return false
}
