// Package wikimarkup extracts infobox key/value facts from raw
// encyclopedia article markup. It is a best-effort balanced-delimiter
// scanner, not a grammar-complete wikitext parser: malformed input
// degrades the output and never produces an error.
package wikimarkup

import (
	"regexp"
	"strings"
)

// Opener patterns tried in order; first match wins. An infobox template
// opens with a name, a pipe, or a newline directly after the token.
var openerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\{\{\s*[Ii]nfobox[ \t][^|{}\n]*`),
	regexp.MustCompile(`\{\{\s*[Ii]nfobox\|`),
	regexp.MustCompile(`\{\{\s*[Ii]nfobox\r?\n`),
}

var strictFieldRe = regexp.MustCompile(`^\s*([\p{L}\p{N}_\- ]+?)\s*=\s*(.*)$`)

// ExtractInfobox locates the first infobox template in markup and
// returns its fields as a key/value mapping. Keys are lowercased with
// spaces converted to underscores. Returns nil when no infobox is
// present, when its braces never balance, or when no fields could be
// extracted. Never panics on malformed input.
func ExtractInfobox(markup string) (fields map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			fields = nil
		}
	}()

	start := findOpener(markup)
	if start < 0 {
		return nil
	}

	end := findBalancedClose(markup, start)
	if end < 0 {
		return nil
	}

	// Body between "{{Infobox ..." header and the matching "}}".
	body := markup[start : end-2]
	if i := strings.IndexAny(body, "|\n"); i >= 0 {
		body = body[i:]
	} else {
		return nil
	}

	fields = accumulateFields(body)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// findOpener returns the byte offset of the first infobox opener.
func findOpener(markup string) int {
	for _, re := range openerPatterns {
		if loc := re.FindStringIndex(markup); loc != nil {
			return loc[0]
		}
	}
	return -1
}

// findBalancedClose scans forward from the "{{" at start, counting
// nested double-brace depth, and returns the offset just past the
// matching "}}". Returns -1 when the braces never balance.
func findBalancedClose(markup string, start int) int {
	depth := 0
	i := start
	for i < len(markup)-1 {
		switch {
		case markup[i] == '{' && markup[i+1] == '{':
			depth += 2
			i += 2
		case markup[i] == '}' && markup[i+1] == '}':
			depth -= 2
			i += 2
			if depth <= 0 {
				return i
			}
		default:
			i++
		}
	}
	return -1
}

// accumulateFields splits the infobox body on top-level pipes and folds
// the segments into key/value pairs. A segment without the "key = value"
// shape is appended to the current field's value as continuation, which
// keeps data from minor malformations instead of discarding it.
func accumulateFields(body string) map[string]string {
	fields := make(map[string]string)
	var curKey string
	var curVal []string

	flush := func() {
		if curKey == "" {
			return
		}
		val := cleanValue(strings.Join(curVal, " "))
		if val != "" {
			fields[curKey] = val
		}
		curKey = ""
		curVal = nil
	}

	for _, seg := range splitTopLevel(body) {
		key, val, ok := matchField(seg)
		if ok {
			flush()
			curKey = key
			curVal = []string{val}
			continue
		}
		if strings.TrimSpace(seg) == "" {
			continue
		}
		if curKey != "" {
			curVal = append(curVal, seg)
		}
	}
	flush()

	return fields
}

// matchField tries a segment as "key = value", strict shape first, then
// a lenient first-equals split for slightly malformed keys.
func matchField(seg string) (key, val string, ok bool) {
	seg = strings.TrimSpace(strings.ReplaceAll(seg, "\n", " "))
	if m := strictFieldRe.FindStringSubmatch(seg); m != nil {
		return normalizeKey(m[1]), m[2], true
	}
	if eq := strings.Index(seg, "="); eq > 0 && !strings.ContainsAny(seg[:eq], "{}[]<>") {
		k := normalizeKey(seg[:eq])
		if k != "" {
			return k, seg[eq+1:], true
		}
	}
	return "", "", false
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.ReplaceAll(k, " ", "_")
}

// splitTopLevel splits on "|" outside nested templates and links.
func splitTopLevel(body string) []string {
	var segs []string
	var buf strings.Builder
	braceDepth, linkDepth := 0, 0

	for i := 0; i < len(body); i++ {
		if i < len(body)-1 {
			switch body[i : i+2] {
			case "{{":
				braceDepth++
				buf.WriteString("{{")
				i++
				continue
			case "}}":
				if braceDepth > 0 {
					braceDepth--
				}
				buf.WriteString("}}")
				i++
				continue
			case "[[":
				linkDepth++
				buf.WriteString("[[")
				i++
				continue
			case "]]":
				if linkDepth > 0 {
					linkDepth--
				}
				buf.WriteString("]]")
				i++
				continue
			}
		}
		if body[i] == '|' && braceDepth == 0 && linkDepth == 0 {
			segs = append(segs, buf.String())
			buf.Reset()
			continue
		}
		buf.WriteByte(body[i])
	}
	segs = append(segs, buf.String())
	return segs
}
