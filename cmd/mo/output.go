package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/os2mo/mora/modules/org/services"
)

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// writeTree prints one line per node, children indented below their parent.
func writeTree(w io.Writer, nodes []*services.TreeNode) error {
	var walk func(nodes []*services.TreeNode, depth int) error
	walk = func(nodes []*services.TreeNode, depth int) error {
		for _, n := range nodes {
			line := strings.Repeat("  ", depth) + n.Name + " (" + n.UUID.String() + ")"
			if n.ChildCount != nil {
				line += fmt.Sprintf(" [%d]", *n.ChildCount)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			if err := walk(n.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nodes, 0)
}
