package catalog

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Selector is the parsed form of the restricted JSONPath-predicate-with-
// equality subset described in spec.md §6: `$[?k='v'].a[?k='v']....`. It
// exists so the four fixed path templates of the Catalog Resolver (see
// resolver.go) are validated and self-describing rather than opaque
// strings; evaluation itself is the hand-written combinator DESIGN NOTES
// §9 calls for, not a generic JSONPath engine driven by this AST.
type Selector struct {
	Root *Predicate `parser:"'$' ( '[' '?' @@ ']' )?"`
	Path []*Step    `parser:"@@*"`
}

// Step is one `.field` or `.field[?k='v']` hop.
type Step struct {
	Field string     `parser:"'.' @Ident"`
	Pred  *Predicate `parser:"( '[' '?' @@ ']' )?"`
}

// Predicate is a single `key='value'` equality test.
type Predicate struct {
	Key   string `parser:"@Ident '='"`
	Value string `parser:"@String"`
}

var selectorLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'[^']*'`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[$\[\]?=.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var selectorParser = participle.MustBuild[Selector](
	participle.Lexer(selectorLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// ParseSelector parses one selector string of the form
// `$[?code='en'].contents[?code='tn'].links[?format='zip'].url` into a
// Selector AST, returning an error if it does not match the restricted
// grammar. Used to validate the Catalog Resolver's fixed templates at
// package init; lookups do not use the parsed form.
func ParseSelector(src string) (*Selector, error) {
	return selectorParser.ParseString("", src)
}

// String renders sel back into its canonical textual form.
func (sel *Selector) String() string {
	var b strings.Builder
	b.WriteString("$")
	if sel.Root != nil {
		fmt.Fprintf(&b, "[?%s='%s']", sel.Root.Key, sel.Root.Value)
	}
	for _, step := range sel.Path {
		fmt.Fprintf(&b, ".%s", step.Field)
		if step.Pred != nil {
			fmt.Fprintf(&b, "[?%s='%s']", step.Pred.Key, step.Pred.Value)
		}
	}
	return b.String()
}

// describeTemplate is a diagnostics helper with no caller in the package:
// it re-parses and re-stringifies a template so a caller can confirm the
// literal path template matches the restricted grammar it claims to
// implement.
func describeTemplate(tpl string) string {
	sel, err := ParseSelector(tpl)
	if err != nil {
		return tpl + " (invalid: " + err.Error() + ")"
	}
	return sel.String()
}
