package catalog

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Condition is a show-condition over previously-answered question
// identifiers, compiled once at catalog load time.
type Condition struct {
	Source  string
	program *vm.Program
	idents  []string
}

// CompileCondition compiles a condition expression. An empty source
// returns a nil Condition, which always evaluates true.
func CompileCondition(source string) (*Condition, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	idents, err := collectIdentifiers(source)
	if err != nil {
		return nil, fmt.Errorf("parsing condition %q: %w", source, err)
	}

	program, err := expr.Compile(source, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling condition %q: %w", source, err)
	}

	return &Condition{Source: source, program: program, idents: idents}, nil
}

// Eval reports whether the condition holds against the answers collected
// so far. A condition referencing an unanswered identifier is false as a
// whole ("not applicable yet"), and any runtime failure fails closed.
func (c *Condition) Eval(answers map[string]any) bool {
	if c == nil || c.program == nil {
		return true
	}

	for _, ident := range c.idents {
		if _, ok := answers[ident]; !ok {
			return false
		}
	}

	out, err := expr.Run(c.program, answers)
	if err != nil {
		return false
	}

	result, ok := out.(bool)
	return ok && result
}

// Identifiers returns the question ids the condition depends on.
func (c *Condition) Identifiers() []string {
	if c == nil {
		return nil
	}
	return c.idents
}

type identVisitor struct {
	seen   map[string]bool
	idents []string
}

func (v *identVisitor) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		if !v.seen[n.Value] {
			v.seen[n.Value] = true
			v.idents = append(v.idents, n.Value)
		}
	}
}

func collectIdentifiers(source string) ([]string, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}

	visitor := &identVisitor{seen: make(map[string]bool)}
	ast.Walk(&tree.Node, visitor)
	return visitor.idents, nil
}
