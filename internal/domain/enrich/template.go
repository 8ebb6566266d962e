// Package enrich contains the pure domain rules of tabular enrichment: template
// substitution, output-cell sentinel semantics, and dedup key derivation. Nothing
// in this package performs I/O.
package enrich

import (
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// FillTemplate substitutes {{column}} tokens in tmpl from the row's current
// values. Columns produced earlier in the same row by prior prompts are visible
// here, which is what makes intra-row prompt chaining work. Unknown variables
// are replaced with the empty string rather than left as literal tokens, so a
// typo in a template degrades to a blank value instead of leaking syntax into
// the provider call.
func FillTemplate(tmpl string, row map[string]string) string {
	if tmpl == "" {
		return ""
	}
	return variablePattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := strings.TrimSpace(token[2 : len(token)-2])
		return row[name]
	})
}

// TemplateVariables returns the distinct variable names referenced by tmpl, in
// first-occurrence order.
func TemplateVariables(tmpl string) []string {
	matches := variablePattern.FindAllStringSubmatch(tmpl, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
