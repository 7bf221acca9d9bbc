package starlark

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.starlark.net/starlark"
)

// builtins are predeclared in every expression next to the tuple fields.
var builtins = starlark.StringDict{
	"num":     starlark.NewBuiltin("num", num),
	"matches": starlark.NewBuiltin("matches", matches),
}

// num(s, default=None) parses s as a number. Integers stay integers.
func num(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	var def starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "s", &s, "default?", &def); err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return starlark.MakeInt64(i), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return starlark.Float(f), nil
	}
	if def != starlark.None {
		return def, nil
	}
	return nil, fmt.Errorf("%s: %q is not a number", b.Name(), s)
}

var (
	patternsMu sync.Mutex
	patterns   = make(map[string]*regexp.Regexp)
)

// matches(pattern, s) reports whether s fully matches the regular expression.
func matches(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern, s string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pattern, &s); err != nil {
		return nil, err
	}

	patternsMu.Lock()
	re, ok := patterns[pattern]
	if !ok {
		var err error
		re, err = regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			patternsMu.Unlock()
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		patterns[pattern] = re
	}
	patternsMu.Unlock()

	return starlark.Bool(re.MatchString(s)), nil
}
