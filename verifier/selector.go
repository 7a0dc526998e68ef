package verifier

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// querySelectorAll returns the nodes matching a selector list in document
// order, without duplicates. Supported subset:
//   - tag, .class, #id and their combinations ("div.resultado")
//   - [attr], [attr=val], [attr*=val], [attr^=val]
//   - descendant combinator ("table tr")
//   - selector lists ("a, b")
func querySelectorAll(doc *html.Node, selector string) []*html.Node {
	seen := make(map[*html.Node]bool)
	for _, group := range strings.Split(selector, ",") {
		for _, n := range queryGroup(doc, strings.Fields(group)) {
			seen[n] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}

	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if seen[n] {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func queryGroup(doc *html.Node, parts []string) []*html.Node {
	if len(parts) == 0 {
		return nil
	}
	matches := matchSimple(doc, parts[0], true)
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		for _, parent := range matches {
			next = append(next, matchSimple(parent, parts[i], false)...)
		}
		matches = next
	}
	return matches
}

// matchSimple walks root's subtree. self controls whether root itself
// may match, which the descendant combinator excludes.
func matchSimple(root *html.Node, sel string, self bool) []*html.Node {
	m := parseSimpleSelector(sel)
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if (self || n != root) && matchesSelector(n, m) {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrOp  string // "", "=", "*=", "^="
	attrVal string
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eq := strings.IndexByte(attrPart, '='); eq >= 0 {
			key := attrPart[:eq]
			s.attrOp = "="
			if n := len(key); n > 0 && (key[n-1] == '*' || key[n-1] == '^') {
				s.attrOp = key[n-1:] + "="
				key = key[:n-1]
			}
			s.attrKey = key
			s.attrVal = strings.Trim(attrPart[eq+1:], `"'`)
		} else {
			s.attrKey = attrPart
		}
	}

	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}

	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}

	s.tag = strings.ToLower(sel)
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(getAttr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.attrKey != "" {
		val, ok := lookupAttr(n, s.attrKey)
		if !ok {
			return false
		}
		switch s.attrOp {
		case "=":
			return val == s.attrVal
		case "*=":
			return strings.Contains(val, s.attrVal)
		case "^=":
			return strings.HasPrefix(val, s.attrVal)
		}
	}
	return true
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// lineBreaking elements start a new line in nodeText output so that
// line-anchored patterns see one label per line.
var lineBreaking = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Tr: true,
	atom.Li: true, atom.Table: true, atom.Section: true, atom.Dt: true,
	atom.Dd: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Form: true,
}

// nodeText returns the visible text under n. Cells are separated by a
// space, block elements by a newline, and runs of blanks are collapsed.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		brk := n.Type == html.ElementNode && lineBreaking[n.DataAtom]
		cell := n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th)
		if brk {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if brk {
			b.WriteByte('\n')
		} else if cell {
			b.WriteByte(' ')
		}
	}
	walk(n)

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
