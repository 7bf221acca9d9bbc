// Package starlark evaluates Starlark expressions over the fields of a
// tuple. It backs the expression filter component.
package starlark

import (
	"fmt"
	"regexp"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/seasr/flowkit/pkg/tuple"
)

// RowVar names the dict holding every field of the current tuple.
const RowVar = "row"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var fileOptions = &syntax.FileOptions{}

// Expression is a parsed Starlark expression.
type Expression struct {
	name   string
	src    string
	macros starlark.StringDict
	pool   *ThreadPool
}

// Compile parses src. name is used in error messages.
func Compile(name, src string) (*Expression, error) {
	return CompileWithMacros(name, src, nil)
}

// CompileWithMacros parses src and predeclares the macro modules returned
// by LoadMacros. Tuple fields shadow macros of the same name.
func CompileWithMacros(name, src string, macros starlark.StringDict) (*Expression, error) {
	if _, err := fileOptions.ParseExpr(name, src, 0); err != nil {
		return nil, &EvalError{Name: name, Expr: src, Message: err.Error()}
	}
	return &Expression{name: name, src: src, macros: macros, pool: NewThreadPool(0)}, nil
}

// String returns the expression source.
func (e *Expression) String() string { return e.src }

// Eval evaluates the expression with vars on top of the builtins.
func (e *Expression) Eval(vars starlark.StringDict) (starlark.Value, error) {
	thread := e.pool.Get(e.name)
	defer e.pool.Put(thread)
	return e.eval(thread, vars)
}

func (e *Expression) eval(thread *starlark.Thread, vars starlark.StringDict) (starlark.Value, error) {
	env := make(starlark.StringDict, len(builtins)+len(e.macros)+len(vars))
	for k, v := range builtins {
		env[k] = v
	}
	for k, v := range e.macros {
		env[k] = v
	}
	for k, v := range vars {
		env[k] = v
	}
	v, err := starlark.EvalOptions(fileOptions, thread, e.name, e.src, env)
	if err != nil {
		return nil, &EvalError{Name: e.name, Expr: e.src, Message: err.Error()}
	}
	return v, nil
}

// Truth evaluates the expression and reports its truth value.
func (e *Expression) Truth(vars starlark.StringDict) (bool, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return false, err
	}
	return bool(v.Truth()), nil
}

// TupleVars binds the fields of t. Fields whose names are identifiers are
// bound directly; every field is also reachable through row["name"].
func TupleVars(t *tuple.Tuple) starlark.StringDict {
	peer := t.Peer()
	vars := make(starlark.StringDict, peer.Size()+1)
	row := starlark.NewDict(peer.Size())
	for i, name := range peer.Fields() {
		v := starlark.String(t.Value(i))
		_ = row.SetKey(starlark.String(name), v)
		if identifierRe.MatchString(name) && name != RowVar {
			if _, reserved := builtins[name]; !reserved {
				vars[name] = v
			}
		}
	}
	vars[RowVar] = row
	return vars
}

// EvalError is an expression that failed to parse or evaluate.
type EvalError struct {
	Name    string
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: error evaluating %q: %s", e.Name, e.Expr, e.Message)
}
