package vault

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// linkParser is a lightweight goldmark instance used only for link discovery.
var linkParser = goldmark.New()

// buildBacklinks walks every document's markdown AST and records which
// documents reference which. Targets are resolved through ResolveLink so
// relative and bare-name links land on the same entry. Links inside code
// blocks are ignored (goldmark does not parse them as links).
func buildBacklinks(v *Vault) map[string][]string {
	backlinks := make(map[string][]string)

	for _, src := range v.order {
		doc := v.Documents[src]
		seen := make(map[string]struct{})

		for _, dest := range extractLinkTargets(doc.Body) {
			target, ok := v.ResolveLink(dest)
			if !ok || target == src {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			backlinks[target] = append(backlinks[target], src)
		}
	}

	return backlinks
}

// extractLinkTargets parses markdown and returns the destination of every
// link, with external URLs, fragments and query-only references filtered out.
func extractLinkTargets(markdown string) []string {
	reader := text.NewReader([]byte(markdown))
	root := linkParser.Parser().Parse(reader)

	var targets []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest string
		switch link := n.(type) {
		case *ast.Link:
			dest = string(link.Destination)
		default:
			return ast.WalkContinue, nil
		}
		dest = strings.TrimSpace(dest)
		if dest == "" || strings.Contains(dest, "://") ||
			strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "?") ||
			strings.HasPrefix(dest, "mailto:") || strings.HasPrefix(dest, "data:") {
			return ast.WalkContinue, nil
		}
		// Drop query and fragment before resolution.
		if i := strings.IndexAny(dest, "?#"); i >= 0 {
			dest = dest[:i]
		}
		if dest != "" {
			targets = append(targets, dest)
		}
		return ast.WalkContinue, nil
	})
	return targets
}
