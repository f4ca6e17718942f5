package wikimarkup

import (
	"regexp"
	"strings"
)

// Template resolution is iterated to a fixed point with a hard pass cap
// so adversarial nesting cannot loop forever.
const maxTemplatePasses = 10

var (
	innermostTemplateRe = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	labeledLinkRe       = regexp.MustCompile(`\[\[[^\]|]*\|([^\]]*)\]\]`)
	plainLinkRe         = regexp.MustCompile(`\[\[([^\]]*)\]\]`)
	lineBreakRe         = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	refPairRe           = regexp.MustCompile(`(?is)<ref[^>/]*>.*?</ref>`)
	refSelfRe           = regexp.MustCompile(`(?i)<ref[^>]*/>`)
	tagRe               = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
}

// nationalityNames maps nationality/flag template names to the literal
// country name they render as.
var nationalityNames = map[string]string{
	"fra": "France", "france": "France",
	"ita": "Italie", "italie": "Italie",
	"sui": "Suisse", "che": "Suisse", "suisse": "Suisse",
	"esp": "Espagne", "espagne": "Espagne",
	"deu": "Allemagne", "all": "Allemagne", "allemagne": "Allemagne",
	"bel": "Belgique", "belgique": "Belgique",
	"and": "Andorre", "andorre": "Andorre",
	"mon": "Monaco", "monaco": "Monaco",
}

// cleanValue renders a raw infobox value as plain text: nested templates
// are substituted to a fixed point, link markup is reduced to its label,
// reference and tag markup is stripped, and whitespace is collapsed.
// Templates whose braces never balance are left untouched.
func cleanValue(raw string) string {
	s := raw
	for pass := 0; pass < maxTemplatePasses; pass++ {
		replaced := innermostTemplateRe.ReplaceAllStringFunc(s, renderTemplate)
		if replaced == s {
			break
		}
		s = replaced
	}

	s = labeledLinkRe.ReplaceAllString(s, "$1")
	s = plainLinkRe.ReplaceAllString(s, "$1")
	s = lineBreakRe.ReplaceAllString(s, " ")
	s = refPairRe.ReplaceAllString(s, "")
	s = refSelfRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")

	return strings.Join(strings.Fields(s), " ")
}

// renderTemplate renders one brace-balanced template invocation:
//   - unit templates render as "<number> <unit><exponent>";
//   - nationality templates render the literal country name;
//   - a generic 2-argument template renders its second argument;
//   - anything else renders its first argument, or its own name when it
//     has none.
func renderTemplate(tpl string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(tpl, "{{"), "}}")
	parts := strings.Split(inner, "|")
	name := strings.TrimSpace(parts[0])
	lower := strings.ToLower(name)

	var args []string
	for _, p := range parts[1:] {
		args = append(args, strings.TrimSpace(p))
	}

	switch {
	case lower == "unité" || lower == "unite" || lower == "unit":
		return renderUnit(args, name)
	case nationalityNames[lower] != "":
		return nationalityNames[lower]
	case len(args) == 2:
		return args[1]
	case len(args) >= 1:
		return args[0]
	default:
		return name
	}
}

// renderUnit renders {{unité|188|km|2}} as "188 km²".
func renderUnit(args []string, name string) string {
	switch len(args) {
	case 0:
		return name
	case 1:
		return args[0]
	case 2:
		return args[0] + " " + args[1]
	default:
		return args[0] + " " + args[1] + toSuperscript(args[2])
	}
}

func toSuperscript(s string) string {
	var b strings.Builder
	for _, r := range s {
		if sup, ok := superscripts[r]; ok {
			b.WriteRune(sup)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
