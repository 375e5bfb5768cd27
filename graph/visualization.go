package graph

import (
	"fmt"
	"strings"
)

// Exporter provides methods to export graphs in different formats
type Exporter[S any] struct {
	graph *StateGraph[S]
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter[S any](graph *StateGraph[S]) *Exporter[S] {
	return &Exporter[S]{graph: graph}
}

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// DrawMermaid generates a Mermaid diagram representation of the graph
func (ge *Exporter[S]) DrawMermaid() string {
	return ge.DrawMermaidWithOptions(MermaidOptions{
		Direction: "TD",
	})
}

// DrawMermaidWithOptions generates a Mermaid diagram with custom options.
// Nodes appear in insertion order. Conditional edges with declared targets
// are drawn as dashed edges to each target.
func (ge *Exporter[S]) DrawMermaidWithOptions(opts MermaidOptions) string {
	var sb strings.Builder

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	g := ge.graph
	if g.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString("    style START fill:#90EE90\n")
	}

	for _, name := range g.order {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", name, name)
	}

	if ge.referencesEnd() {
		sb.WriteString("    END([\"END\"])\n")
		sb.WriteString("    style END fill:#FFB6C1\n")
	}

	if g.entryPoint != "" {
		fmt.Fprintf(&sb, "    START --> %s\n", g.entryPoint)
	}

	for _, edge := range g.edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", edge.From, edge.To)
	}

	for _, from := range g.order {
		ce, ok := g.conditionalEdges[from]
		if !ok {
			continue
		}
		if len(ce.targets) == 0 {
			fmt.Fprintf(&sb, "    %s -.-> %s_condition((?))\n", from, from)
			fmt.Fprintf(&sb, "    style %s_condition fill:#FFFFE0,stroke:#333,stroke-dasharray: 5 5\n", from)
			continue
		}
		for _, to := range ce.targets {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", from, to)
		}
	}

	if g.entryPoint != "" {
		fmt.Fprintf(&sb, "    style %s fill:#87CEEB\n", g.entryPoint)
	}

	return sb.String()
}

func (ge *Exporter[S]) referencesEnd() bool {
	for _, edge := range ge.graph.edges {
		if edge.To == END {
			return true
		}
	}
	for _, ce := range ge.graph.conditionalEdges {
		for _, to := range ce.targets {
			if to == END {
				return true
			}
		}
	}
	return false
}

// DrawASCII generates an ASCII tree representation of the graph
func (ge *Exporter[S]) DrawASCII() string {
	if ge.graph.entryPoint == "" {
		return "No entry point set\n"
	}

	var sb strings.Builder
	visited := make(map[string]bool)

	sb.WriteString("Graph Execution Flow:\n")
	sb.WriteString("├── START\n")

	ge.drawASCIINode(ge.graph.entryPoint, "│   ", true, visited, &sb)

	return sb.String()
}

func (ge *Exporter[S]) drawASCIINode(nodeName string, prefix string, isLast bool, visited map[string]bool, sb *strings.Builder) {
	connector := "├──"
	nextPrefix := prefix + "│   "
	if isLast {
		connector = "└──"
		nextPrefix = prefix + "    "
	}

	if nodeName == END {
		fmt.Fprintf(sb, "%s%s %s\n", prefix, connector, nodeName)
		return
	}
	if visited[nodeName] {
		fmt.Fprintf(sb, "%s%s %s (cycle)\n", prefix, connector, nodeName)
		return
	}
	visited[nodeName] = true

	fmt.Fprintf(sb, "%s%s %s\n", prefix, connector, nodeName)

	var children []string
	for _, edge := range ge.graph.edges {
		if edge.From == nodeName {
			children = append(children, edge.To)
		}
	}

	conditional := false
	if ce, ok := ge.graph.conditionalEdges[nodeName]; ok {
		if len(ce.targets) > 0 {
			children = append(children, ce.targets...)
		} else {
			conditional = true
		}
	}

	for i, target := range children {
		ge.drawASCIINode(target, nextPrefix, i == len(children)-1 && !conditional, visited, sb)
	}
	if conditional {
		fmt.Fprintf(sb, "%s└── (?)\n", nextPrefix)
	}
}
