package store

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Predicate is a compiled boolean expression over the fields of a document,
// e.g. `year < 1970 && editor == "A editor"`. Missing fields read as nil.
type Predicate struct {
	src string
	prg *vm.Program
}

func CompilePredicate(src string) (*Predicate, error) {
	prg, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPredicate, err)
	}
	return &Predicate{src: src, prg: prg}, nil
}

func (p *Predicate) Match(doc Document) (bool, error) {
	res, err := expr.Run(p.prg, map[string]any(doc))
	if err != nil {
		return false, fmt.Errorf("%w: %q: %w", ErrInvalidPredicate, p.src, err)
	}
	ok, _ := res.(bool)
	return ok, nil
}

func (p *Predicate) String() string {
	return p.src
}
