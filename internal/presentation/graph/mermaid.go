package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/ason/pkg/capability"
)

// Overlay contains live state to visualize on the graph.
type Overlay struct {
	// Attached lists the operator kinds with an object currently attached.
	Attached []string
}

// GenerateMermaid produces a Mermaid flowchart of a capability surface.
// Shapes:
// - Root kind: ((Circle))
// - Tool set: [[Subroutine]]
// - Operator kind: [Rectangle]
// Navigation methods become edges labelled with the method name.
func GenerateMermaid(root string, types []*capability.Type, toolSets []*capability.ToolSet, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, t := range types {
		safeID := sanitizeMermaidID(t.Name)
		opener, closer := "[", "]"
		if t.Name == root {
			opener, closer = "((", "))"
		}

		label := t.Name
		if n := len(t.Methods); n > 0 {
			label = fmt.Sprintf("%s <br/> %d method(s)", t.Name, n)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, m := range t.Methods {
			if m.Opens == "" {
				continue
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, m.Name, sanitizeMermaidID(m.Opens))
		}
	}

	for _, ts := range toolSets {
		safeID := sanitizeMermaidID(ts.TypeName)
		fmt.Fprintf(&sb, "    %s[[\"%s <br/> %d tool(s)\"]]\n", safeID, ts.Server, len(ts.Tools))
		if root != "" {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", sanitizeMermaidID(root), safeID)
		}
	}

	if overlay != nil && len(overlay.Attached) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef attached fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")

		seen := make(map[string]bool)
		for _, kind := range overlay.Attached {
			safeID := sanitizeMermaidID(kind)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s attached;\n", safeID)
			}
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
