package verifier

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Markers drives Classify. Phrases and words match case- and
// accent-insensitively. Results lists the answer containers: without one
// of them on the page the data tier is skipped.
type Markers struct {
	Block           []string `yaml:"block"`
	Negative        []string `yaml:"negative"`
	NegativePhrases []string `yaml:"negative_phrases"`
	Results         []string `yaml:"results"`
	Data            []string `yaml:"data"`
	DataWords       []string `yaml:"data_words"`
}

// DefaultMarkers matches the electoral census lookup page.
func DefaultMarkers() Markers {
	return Markers{
		Block:           []string{".cf-im-under-attack"},
		Negative:        []string{".alert", ".error", ".mensaje-error", "[class*=error]"},
		NegativePhrases: []string{"no registra", "no se encuentra", "no encontrado", "invalida"},
		Results:         []string{".resultado, .datos-votante, .info-votante, table tr"},
		Data:            []string{"table tr", ".resultado, .datos-votante, .info-votante", "div"},
		DataWords:       []string{"puesto", "mesa", "lugar"},
	}
}

// Classification is the verdict on one result page.
type Classification struct {
	Kind Kind
	// Text is the text of the element that decided the verdict.
	Text string
	Site *VotingSite
	Name string
}

// Result converts the verdict to a Result.
func (c Classification) Result() Result {
	switch c.Kind {
	case KindFound:
		return Found(*c.Site, c.Name)
	case KindNotRegistered:
		return Failure(KindNotRegistered, MsgNotRegistered)
	case KindBlocked:
		return Failure(KindBlocked, MsgBlocked)
	}
	return Failure(KindAmbiguous, MsgAmbiguous)
}

// Classify applies DefaultMarkers to a page.
func Classify(page string) Classification {
	return DefaultMarkers().Classify(page)
}

// Classify inspects a result page. Tiers are checked in order and the
// first hit wins: interstitial, negative marker, data marker. Data markers
// are only read on a page holding a result container, so the bare lookup
// form never counts as an answer. A page matching none of them is
// ambiguous, which is not the same as absent.
func (m Markers) Classify(page string) Classification {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return Classification{Kind: KindAmbiguous}
	}

	for _, sel := range m.Block {
		if len(querySelectorAll(doc, sel)) > 0 {
			return Classification{Kind: KindBlocked}
		}
	}

	for _, sel := range m.Negative {
		for _, n := range querySelectorAll(doc, sel) {
			text := nodeText(n)
			if containsAny(text, m.NegativePhrases) {
				return Classification{Kind: KindNotRegistered, Text: text}
			}
		}
	}

	if !hasAny(doc, m.Results) {
		return Classification{Kind: KindAmbiguous}
	}
	for _, sel := range m.Data {
		for _, n := range querySelectorAll(doc, sel) {
			text := nodeText(n)
			if !containsAny(text, m.DataWords) {
				continue
			}
			if n.DataAtom == atom.Tr {
				text = rowText(n)
			}
			site := ExtractVotingSite(text)
			return Classification{Kind: KindFound, Text: text, Site: &site, Name: ExtractName(text)}
		}
	}

	return Classification{Kind: KindAmbiguous}
}

func hasAny(doc *html.Node, selectors []string) bool {
	if len(selectors) == 0 {
		return true
	}
	for _, sel := range selectors {
		if len(querySelectorAll(doc, sel)) > 0 {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) bool {
	folded := fold(text)
	for _, w := range words {
		if strings.Contains(folded, fold(w)) {
			return true
		}
	}
	return false
}

// fold lowercases s and strips combining marks ("Inválida" -> "invalida").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
