package brickz

import (
	"fmt"
	"strings"
)

// Variant is a discriminator for the node type in a composition graph.
// Used by external tooling when walking a pipeline's structure.
type Variant string

// Variants for all composition node types.
const (
	// Leaves.
	VariantLeaf    Variant = "leaf"
	VariantAdapter Variant = "adapter"

	// Connectors (have children).
	VariantCompose  Variant = "compose"
	VariantBranch   Variant = "branch"
	VariantParallel Variant = "parallel"
	VariantMerge    Variant = "merge"
	VariantBoundary Variant = "boundary"
	VariantSwap     Variant = "swap"
	VariantRetry    Variant = "retry"
	VariantTimeout  Variant = "timeout"
	VariantLogged   Variant = "logged"
)

// Node describes one element of a composition graph: its name, variant,
// declared input and output types, and its children in registration order.
// Every Stage carries a Node, so a built pipeline can be inspected or
// serialized without invoking anything.
type Node struct {
	Name     Name    `json:"name"`
	Variant  Variant `json:"variant"`
	In       string  `json:"in,omitempty"`
	Out      string  `json:"out,omitempty"`
	Children []Node  `json:"children,omitempty"`
}

// render writes the node and its children as an indented tree.
func (n Node) render(b *strings.Builder, prefix string, last bool) {
	connector := "├─ "
	childPrefix := prefix + "│  "
	if last {
		connector = "└─ "
		childPrefix = prefix + "   "
	}
	if prefix == "" && connector == "└─ " {
		// Root node renders without a connector.
		connector = ""
		childPrefix = "   "
	}
	fmt.Fprintf(b, "%s%s[%s] %s", prefix, connector, n.Variant, n.Name)
	if n.In != "" || n.Out != "" {
		fmt.Fprintf(b, " (%s -> %s)", n.In, n.Out)
	}
	b.WriteByte('\n')
	for i, child := range n.Children {
		child.render(b, childPrefix, i == len(n.Children)-1)
	}
}

// Render returns the node tree as indented text, one node per line.
func (n Node) Render() string {
	var b strings.Builder
	n.render(&b, "", true)
	return b.String()
}

// explain appends a one-line narrative per node, depth-first.
func (n Node) explain(lines *[]string, depth int) {
	indent := strings.Repeat("  ", depth)
	var line string
	switch n.Variant {
	case VariantLeaf:
		line = fmt.Sprintf("%sinvoke %q (%s -> %s)", indent, n.Name, n.In, n.Out)
	case VariantAdapter:
		line = fmt.Sprintf("%sadapt %s to %s via %q", indent, n.In, n.Out, n.Name)
	case VariantCompose:
		line = fmt.Sprintf("%srun in order:", indent)
	case VariantBranch:
		line = fmt.Sprintf("%sbranch %q on its predicate:", indent, n.Name)
	case VariantParallel:
		line = fmt.Sprintf("%srun %d bricks concurrently, results in registration order:", indent, len(n.Children))
	case VariantMerge:
		line = fmt.Sprintf("%smerge parallel results via %q", indent, n.Name)
	case VariantBoundary:
		line = fmt.Sprintf("%srecover failures of:", indent)
	default:
		line = fmt.Sprintf("%s%s %q", indent, n.Variant, n.Name)
	}
	*lines = append(*lines, line)
	for _, child := range n.Children {
		child.explain(lines, depth+1)
	}
}

// Explain returns a human-readable narrative of the graph, one step per
// line, indented by depth.
func (n Node) Explain() string {
	var lines []string
	n.explain(&lines, 0)
	return strings.Join(lines, "\n")
}
