package verifier

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// labelStop ends a labelled value at the next label on the same line.
const labelStop = `\s*(?:(?:puesto|mesa|ciudad|municipio|direcci[oó]n|departamento|nombre)\s*:|,|$)`

var (
	rePrecinct = regexp.MustCompile(`(?im)puesto(?:\s+de\s+votaci[oó]n)?\s*:\s*(\d+)`)
	reTable    = regexp.MustCompile(`(?im)mesa\s*:\s*(\d+)`)
	reCity     = regexp.MustCompile(`(?im)(?:ciudad|municipio)\s*:\s*([^,\n]+?)` + labelStop)
	reAddress  = regexp.MustCompile(`(?im)direcci[oó]n\s*:\s*([^,\n]+?)` + labelStop)
	reRegion   = regexp.MustCompile(`(?im)departamento\s*:\s*([^,\n]+?)` + labelStop)
	reName     = regexp.MustCompile(`(?im)nombre(?:\s+completo)?\s*:\s*([^,\n]+?)` + labelStop)

	// First digit run after the word on the same line.
	reNearPrecinct = regexp.MustCompile(`(?i)puesto[^\d\n]*(\d+)`)
	reNearTable    = regexp.MustCompile(`(?i)mesa[^\d\n]*(\d+)`)
)

// ExtractVotingSite parses a voting site out of the text of a data block.
// Labelled values ("Puesto: 45") are tried first. A field still missing
// falls back to the number following the word on the same line, kept only
// when short enough (4 digits for puesto, 3 for mesa). Anything unresolved
// carries the Unspecified/UnspecifiedF sentinel, so every field is always
// set.
func ExtractVotingSite(text string) VotingSite {
	site := VotingSite{
		Precinct: firstGroup(rePrecinct, text),
		Table:    firstGroup(reTable, text),
		City:     firstGroup(reCity, text),
		Address:  firstGroup(reAddress, text),
		Region:   firstGroup(reRegion, text),
	}

	if site.Precinct == "" {
		site.Precinct = shortGroup(reNearPrecinct, text, 4)
	}
	if site.Table == "" {
		site.Table = shortGroup(reNearTable, text, 3)
	}

	site.City = orDefault(site.City, UnspecifiedF)
	site.Precinct = orDefault(site.Precinct, Unspecified)
	site.Table = orDefault(site.Table, UnspecifiedF)
	site.Address = orDefault(site.Address, UnspecifiedF)
	site.Region = orDefault(site.Region, Unspecified)
	return site
}

// ExtractName returns the labelled holder name in text, or "".
func ExtractName(text string) string {
	return firstGroup(reName, text)
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// shortGroup is firstGroup, dropped when longer than max.
func shortGroup(re *regexp.Regexp, s string, max int) string {
	v := firstGroup(re, s)
	if len(v) > max {
		return ""
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// rowText returns the text of a table row. A header row whose cells are
// all bare labels ("Puesto", "Mesa") is paired with the following row and
// rendered as "Label: value" lines, which ExtractVotingSite understands.
func rowText(tr *html.Node) string {
	headers := cells(tr)
	next := nextRow(tr)
	if next == nil || len(headers) == 0 {
		return nodeText(tr)
	}
	for _, h := range headers {
		if h == "" || strings.ContainsAny(h, ":0123456789") {
			return nodeText(tr)
		}
	}
	values := cells(next)
	if len(values) != len(headers) {
		return nodeText(tr)
	}
	var b strings.Builder
	for i, h := range headers {
		b.WriteString(h)
		b.WriteString(": ")
		b.WriteString(values[i])
		b.WriteByte('\n')
	}
	return b.String()
}

func cells(tr *html.Node) []string {
	var out []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			out = append(out, strings.Join(strings.Fields(nodeText(c)), " "))
		}
	}
	return out
}

func nextRow(tr *html.Node) *html.Node {
	for s := tr.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && s.DataAtom == atom.Tr {
			return s
		}
	}
	// thead > tr followed by tbody > tr
	if p := tr.Parent; p != nil && p.DataAtom == atom.Thead {
		for s := p.NextSibling; s != nil; s = s.NextSibling {
			if s.Type == html.ElementNode && s.DataAtom == atom.Tbody {
				for c := s.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.DataAtom == atom.Tr {
						return c
					}
				}
			}
		}
	}
	return nil
}
