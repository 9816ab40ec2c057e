package audit

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// A declaration can only start at the beginning of the text or after
	// whitespace, '{', ';' or '('. This keeps BEM selectors like
	// .btn--primary:hover from being read as custom property declarations.
	// Comments are not stripped: the scan is purely textual.
	declarationPattern = regexp.MustCompile(`(?:^|[\s{;(])(--[A-Za-z0-9_-]+)\s*:\s*([^;}]*)`)
	usagePattern       = regexp.MustCompile(`var\(\s*(--[A-Za-z0-9_-]+)`)
)

// DefaultAllowlist holds variable prefixes that a WordPress runtime injects.
// References to them are never reported as unresolved.
var DefaultAllowlist = []string{"--wp--", "--wp-admin-", "--wp-block-", "--wp-components-"}

// AnalyzeVariables computes declared, used, unused, unresolved and duplicated
// custom properties for a CSS text. Cascade and scoping are ignored: a
// variable declared anywhere counts as declared everywhere, and its value is
// the first one seen in the text.
func AnalyzeVariables(css string) VariablesReport {
	report := VariablesReport{
		Declared:   []VariableFact{},
		Used:       []string{},
		Unused:     []string{},
		Unresolved: []string{},
		Duplicates: []DuplicateGroup{},
	}

	declared := make(map[string]bool)
	for _, m := range declarationPattern.FindAllStringSubmatch(css, -1) {
		name := m[1]
		if declared[name] {
			continue
		}
		declared[name] = true
		report.Declared = append(report.Declared, VariableFact{
			Name:  name,
			Value: strings.TrimSpace(m[2]),
		})
	}

	used := make(map[string]bool)
	for _, m := range usagePattern.FindAllStringSubmatch(css, -1) {
		name := m[1]
		if used[name] {
			continue
		}
		used[name] = true
		report.Used = append(report.Used, name)
	}

	for _, fact := range report.Declared {
		if !used[fact.Name] {
			report.Unused = append(report.Unused, fact.Name)
		}
	}
	for _, name := range report.Used {
		if !declared[name] {
			report.Unresolved = append(report.Unresolved, name)
		}
	}

	report.Duplicates = groupDuplicates(report.Declared)
	return report
}

// groupDuplicates groups declarations by identical non-empty value, keeping
// groups and names in first-seen order.
func groupDuplicates(facts []VariableFact) []DuplicateGroup {
	index := make(map[string]int)
	var groups []DuplicateGroup
	for _, fact := range facts {
		if fact.Value == "" {
			continue
		}
		i, ok := index[fact.Value]
		if !ok {
			index[fact.Value] = len(groups)
			groups = append(groups, DuplicateGroup{Value: fact.Value, Names: []string{fact.Name}})
			continue
		}
		groups[i].Names = append(groups[i].Names, fact.Name)
	}

	result := []DuplicateGroup{}
	for _, g := range groups {
		if len(g.Names) >= 2 {
			result = append(result, g)
		}
	}
	return result
}

// isAllowlisted reports whether name starts with one of the given prefixes.
func isAllowlisted(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// VariableDiagnostics turns a report into diagnostics. Unresolved references
// matching an allowlisted prefix are dropped.
func (a *Analyzer) VariableDiagnostics(report VariablesReport) []Diagnostic {
	var diags []Diagnostic

	for _, name := range report.Unresolved {
		if isAllowlisted(name, a.allowlist) {
			continue
		}
		diags = append(diags, Diagnostic{
			ID:         a.newID(),
			Kind:       KindUnresolvedVariable,
			Severity:   SeverityHigh,
			Message:    fmt.Sprintf("Undefined CSS variable %s", name),
			Details:    fmt.Sprintf("var(%s) is referenced but %s is never declared in the page's CSS", name, name),
			Suggestion: fmt.Sprintf("Declare %s (for example on :root) or fix the reference", name),
			Location:   &Location{Variable: name},
		})
	}

	for _, name := range report.Unused {
		diags = append(diags, Diagnostic{
			ID:         a.newID(),
			Kind:       KindUnusedVariable,
			Severity:   SeverityLow,
			Message:    fmt.Sprintf("Unused CSS variable %s", name),
			Details:    fmt.Sprintf("%s is declared but never read through var()", name),
			Suggestion: fmt.Sprintf("Remove %s if nothing depends on it", name),
			Location:   &Location{Variable: name},
		})
	}

	for _, group := range report.Duplicates {
		names := strings.Join(group.Names, ", ")
		diags = append(diags, Diagnostic{
			ID:         a.newID(),
			Kind:       KindDuplicateVariable,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("Variables %s share the value %q", names, group.Value),
			Details:    fmt.Sprintf("%d variables are declared with the identical value %q: %s", len(group.Names), group.Value, names),
			Suggestion: fmt.Sprintf("Consolidate into a single variable such as %s", group.Names[0]),
			Location:   &Location{Variable: group.Names[0]},
		})
	}

	return diags
}
