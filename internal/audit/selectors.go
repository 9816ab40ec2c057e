package audit

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Specificity thresholds. A selector is overly specific when it carries more
// than maxIDs id selectors or more than maxClasses class selectors.
const (
	maxIDs     = 1
	maxClasses = 2
)

// SelectorSpecificity counts the id and class components of a selector
// text. For a selector list the counts cover every selector in the list.
type SelectorSpecificity struct {
	IDs     int
	Classes int
}

// TooSpecific reports whether the counts cross the specificity heuristic.
func (s SelectorSpecificity) TooSpecific() bool {
	return s.IDs > maxIDs || s.Classes > maxClasses
}

// ParseError describes CSS that could not be parsed.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset %d", e.Reason, e.Offset)
	}
	return e.Reason
}

// rule is one style rule's selector list as it appears in the source.
type rule struct {
	selectors []string
	specs     []SelectorSpecificity
}

func (r rule) text() string {
	return strings.Join(r.selectors, ", ")
}

// total sums the counts of every selector in the rule's prelude.
func (r rule) total() SelectorSpecificity {
	var t SelectorSpecificity
	for _, s := range r.specs {
		t.IDs += s.IDs
		t.Classes += s.Classes
	}
	return t
}

func (r rule) tooSpecific() bool {
	return r.total().TooSpecific()
}

// scanRules walks the token stream once, failing on unbalanced curly braces
// and collecting the selector prelude of every style rule. Rules nested in
// at-rules such as @media or @supports are included; at-rule preludes are not.
// Braces inside strings and comments are tokenized away by the lexer.
func scanRules(text string) ([]rule, error) {
	lexer := css.NewLexer(parse.NewInputString(text))
	var rules []rule
	var prelude []css.Token
	depth := 0
	offset := 0
	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			if err := lexer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, &ParseError{Offset: offset, Reason: err.Error()}
			}
			break
		}
		switch tt {
		case css.LeftBraceToken:
			depth++
			if len(prelude) > 0 && prelude[0].TokenType != css.AtKeywordToken {
				var r rule
				r.add(prelude)
				if len(r.selectors) > 0 {
					rules = append(rules, r)
				}
			}
			prelude = prelude[:0]
		case css.RightBraceToken:
			depth--
			if depth < 0 {
				return nil, &ParseError{Offset: offset, Reason: "unexpected '}'"}
			}
			prelude = prelude[:0]
		case css.SemicolonToken:
			prelude = prelude[:0]
		case css.CommentToken, css.CDOToken, css.CDCToken:
		case css.WhitespaceToken:
			if len(prelude) > 0 {
				prelude = append(prelude, css.Token{TokenType: tt, Data: []byte(" ")})
			}
		default:
			prelude = append(prelude, css.Token{TokenType: tt, Data: append([]byte(nil), data...)})
		}
		offset += len(data)
	}
	if depth > 0 {
		return nil, &ParseError{Offset: -1, Reason: fmt.Sprintf("%d unclosed '{'", depth)}
	}
	return rules, nil
}

// checkGrammar runs the full CSS grammar over text and returns the first
// error that is not the end of input.
func checkGrammar(text string) error {
	p := css.NewParser(parse.NewInputString(text), false)
	for {
		gt, _, _ := p.Next()
		if gt != css.ErrorGrammar {
			continue
		}
		if err := p.Err(); err != nil && !errors.Is(err, io.EOF) {
			return &ParseError{Offset: -1, Reason: err.Error()}
		}
		return nil
	}
}

// parseRules validates text and returns every style rule's selectors.
func parseRules(text string) ([]rule, error) {
	rules, err := scanRules(text)
	if err != nil {
		return nil, err
	}
	if err := checkGrammar(text); err != nil {
		return nil, err
	}
	return rules, nil
}

// add appends the comma separated selectors found in tokens.
func (r *rule) add(tokens []css.Token) {
	var sb strings.Builder
	var spec SelectorSpecificity
	prevDot := false

	flush := func() {
		sel := strings.TrimSpace(sb.String())
		if sel != "" {
			r.selectors = append(r.selectors, sel)
			r.specs = append(r.specs, spec)
		}
		sb.Reset()
		spec = SelectorSpecificity{}
	}

	for _, tok := range tokens {
		switch tok.TokenType {
		case css.CommaToken:
			flush()
			prevDot = false
			continue
		case css.HashToken:
			spec.IDs++
		case css.IdentToken:
			if prevDot {
				spec.Classes++
			}
		}
		prevDot = tok.TokenType == css.DelimToken && len(tok.Data) == 1 && tok.Data[0] == '.'
		sb.Write(tok.Data)
	}
	flush()
}

// Specificity returns the id and class counts of a selector or selector list.
func Specificity(selector string) SelectorSpecificity {
	var r rule
	lexer := css.NewLexer(parse.NewInputString(selector))
	var tokens []css.Token
	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			break
		}
		tokens = append(tokens, css.Token{TokenType: tt, Data: append([]byte(nil), data...)})
	}
	r.add(tokens)
	return r.total()
}

// SelectorDiagnostics reports overly specific rules, or a single critical
// parse error when the text cannot be parsed.
func (a *Analyzer) SelectorDiagnostics(text string) []Diagnostic {
	rules, err := parseRules(text)
	if err != nil {
		return []Diagnostic{{
			ID:         a.newID(),
			Kind:       KindParseError,
			Severity:   SeverityCritical,
			Message:    "CSS could not be parsed",
			Details:    err.Error(),
			Suggestion: "Fix the syntax error; selector checks are skipped until the stylesheet parses",
		}}
	}

	var diags []Diagnostic
	for _, r := range rules {
		if !r.tooSpecific() {
			continue
		}
		sel := r.text()
		diags = append(diags, Diagnostic{
			ID:         a.newID(),
			Kind:       KindHighSpecificity,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("Selector %q is overly specific", sel),
			Details:    describeSpecs(r),
			Suggestion: "Flatten the selector to a single class, or at most two",
			Location:   &Location{Selector: sel},
		})
	}
	return diags
}

func describeSpecs(r rule) string {
	t := r.total()
	return fmt.Sprintf("%s has %d id and %d class selectors (limits: %d id, %d class)",
		r.text(), t.IDs, t.Classes, maxIDs, maxClasses)
}
