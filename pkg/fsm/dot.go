package fsm

import (
	"fmt"
	"sort"
	"strings"
)

// Export renders topology as a GraphViz DOT digraph named `name`:
//   - a fixed header with graph/node/edge default attributes
//   - node identifiers "<name>.<STATE>", labeled with the state alone
//   - parallel edges between the same (from,to) pair merged into one,
//     labeled with the comma-joined, lexicographically sorted set of
//     event kinds that lead between them, joined with a literal `\n`
//     (the two characters backslash-n, not an embedded newline byte)
//   - states emitted in first-appearance (builder) order; destinations
//     in event-kind declaration order within each source state
//   - multi-arc edges expanded to one edge per valid target
//
// Calling Export twice on the same topology yields byte-identical
// output.
func Export[O any, S comparable, K comparable, E any](topology *Topology[O, S, K, E], name string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "digraph %s {\n", name)
	fmt.Fprintf(&b, "  graph [label=\"%s\", fontsize=24, fontname=Helvetica];\n", name)
	b.WriteString("  node [fontsize=12, fontname=Helvetica];\n")
	b.WriteString("  edge [fontsize=9, fontcolor=blue, fontname=Arial];\n")

	states := topology.States()

	for _, s := range states {
		fmt.Fprintf(&b, "  \"%s.%v\" [label=\"%v\"];\n", name, s, s)
	}

	// Merge parallel arcs sharing (from,to) into a single label set,
	// per-from-state, preserving each destination's first-seen order.
	for _, from := range states {
		type destEntry struct {
			to     S
			kinds  []string
			seenAt int
		}
		order := 0
		merged := make(map[any]*destEntry)
		var destOrder []any

		for _, arc := range topology.ArcsFrom(from) {
			label := fmt.Sprintf("%v", arc.Kind)
			for _, to := range arc.To {
				key := any(to)
				e, ok := merged[key]
				if !ok {
					e = &destEntry{to: to, seenAt: order}
					merged[key] = e
					destOrder = append(destOrder, key)
					order++
				}
				e.kinds = append(e.kinds, label)
			}
		}

		for _, key := range destOrder {
			e := merged[key]
			kinds := append([]string(nil), e.kinds...)
			sort.Strings(kinds)
			label := strings.Join(kinds, `,\n`)
			fmt.Fprintf(&b, "  \"%s.%v\" -> \"%s.%v\" [label=\"%s\"];\n", name, from, name, e.to, label)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
