package expr

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/doctype/internal/value"
)

type builtin func(n call, args []value.Value) (value.Value, error)

// builtins is the closed set of callable functions. "if" is handled by the
// interpreter because its arguments are evaluated lazily.
var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"len":        fnLen,
		"str":        fnStr,
		"int":        fnInt,
		"decimal":    fnDecimal,
		"bool":       fnBool,
		"abs":        fnAbs,
		"min":        fnMin,
		"max":        fnMax,
		"sum":        fnSum,
		"round":      fnRound,
		"lower":      stringFn(strings.ToLower),
		"upper":      stringFn(strings.ToUpper),
		"trim":       stringFn(strings.TrimSpace),
		"startswith": fnStartsWith,
		"endswith":   fnEndsWith,
		"contains":   fnContains,
		"keys":       fnKeys,
		"join":       fnJoin,
		"split":      fnSplit,
		"coalesce":   fnCoalesce,
		"get":        fnGet,
		"is_null":    fnIsNull,
	}
}

// Builtins returns the names of the callable functions, sorted.
func Builtins() []string {
	names := make([]string, 0, len(builtins)+1)
	for name := range builtins {
		names = append(names, name)
	}
	names = append(names, "if")
	sort.Strings(names)
	return names
}

func (in *interp) call(n call) (value.Value, error) {
	if n.fn == "if" {
		if len(n.args) != 3 {
			return nil, errAt(n, "if expects 3 arguments, got %d", len(n.args))
		}
		cond, err := in.eval(n.args[0])
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return in.eval(n.args[1])
		}
		return in.eval(n.args[2])
	}

	fn, ok := builtins[n.fn]
	if !ok {
		return nil, errAt(n, "unknown function %s", n.fn)
	}
	args := make([]value.Value, len(n.args))
	for i, a := range n.args {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(n, args)
}

func arity(n call, args []value.Value, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		switch {
		case min == max:
			return errAt(n, "%s expects %d argument(s), got %d", n.fn, min, len(args))
		case max < 0:
			return errAt(n, "%s expects at least %d argument(s), got %d", n.fn, min, len(args))
		default:
			return errAt(n, "%s expects %d to %d arguments, got %d", n.fn, min, max, len(args))
		}
	}
	return nil
}

func fnLen(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case value.String:
		return value.Int(len([]rune(string(v)))), nil
	case value.Array:
		return value.Int(len(v)), nil
	case value.Object:
		return value.Int(len(v)), nil
	case value.Null:
		return value.Int(0), nil
	}
	return nil, errAt(n, "len of %s", value.TypeName(args[0]))
}

func fnStr(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	return value.String(Stringify(args[0])), nil
}

// Stringify renders a value as text: strings as-is, null as empty,
// numbers and booleans in their canonical form, collections as JSON.
func Stringify(v value.Value) string {
	switch val := v.(type) {
	case value.String:
		return string(val)
	case value.Null, nil:
		return ""
	case value.Int:
		return strconv.FormatInt(int64(val), 10)
	case value.Decimal:
		return val.String()
	case value.Bool:
		return strconv.FormatBool(bool(val))
	default:
		b, err := value.MarshalCanonical(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func fnInt(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case value.Int:
		return v, nil
	case value.Decimal:
		d := v.Apd()
		var truncated apd.Decimal
		c := *decimalCtx
		c.Rounding = apd.RoundDown
		if _, err := c.RoundToIntegralValue(&truncated, d); err != nil {
			return nil, errAt(n, "int: %v", err)
		}
		i, err := truncated.Int64()
		if err != nil {
			return nil, errAt(n, "int: %s out of range", v)
		}
		return value.Int(i), nil
	case value.String:
		s := strings.TrimSpace(string(v))
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errAt(n, "int: cannot convert %q", s)
		}
		return value.Int(i), nil
	case value.Bool:
		if v {
			return value.Int(1), nil
		}
		return value.Int(0), nil
	}
	return nil, errAt(n, "int: cannot convert %s", value.TypeName(args[0]))
}

func fnDecimal(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case value.Int, value.Decimal:
		return v, nil
	case value.String:
		d, err := value.ParseDecimal(strings.TrimSpace(string(v)))
		if err != nil {
			return nil, errAt(n, "decimal: cannot convert %q", string(v))
		}
		return value.Normalize(d), nil
	}
	return nil, errAt(n, "decimal: cannot convert %s", value.TypeName(args[0]))
}

func fnBool(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	return value.Bool(Truthy(args[0])), nil
}

func fnAbs(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	d, ok := toApd(args[0])
	if !ok {
		return nil, errAt(n, "abs of %s", value.TypeName(args[0]))
	}
	return fromApd(n, new(apd.Decimal).Abs(d))
}

// numbers flattens min/max/sum arguments: either several numbers or a
// single list of numbers.
func numbers(n call, args []value.Value) ([]*apd.Decimal, error) {
	items := args
	if len(args) == 1 {
		if list, ok := args[0].(value.Array); ok {
			items = list
		}
	}
	out := make([]*apd.Decimal, 0, len(items))
	for _, item := range items {
		if value.IsNull(item) {
			continue
		}
		d, ok := toApd(item)
		if !ok {
			return nil, errAt(n, "%s expects numbers, got %s", n.fn, value.TypeName(item))
		}
		out = append(out, d)
	}
	return out, nil
}

func fnMin(n call, args []value.Value) (value.Value, error) {
	return extremum(n, args, -1)
}

func fnMax(n call, args []value.Value) (value.Value, error) {
	return extremum(n, args, 1)
}

func extremum(n call, args []value.Value, sign int) (value.Value, error) {
	if err := arity(n, args, 1, -1); err != nil {
		return nil, err
	}
	nums, err := numbers(n, args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return value.Null{}, nil
	}
	best := nums[0]
	for _, d := range nums[1:] {
		if d.Cmp(best)*sign > 0 {
			best = d
		}
	}
	return fromApd(n, best)
}

func fnSum(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, -1); err != nil {
		return nil, err
	}
	nums, err := numbers(n, args)
	if err != nil {
		return nil, err
	}
	total := apd.New(0, 0)
	for _, d := range nums {
		if _, err := decimalCtx.Add(total, total, d); err != nil {
			return nil, errAt(n, "sum: %v", err)
		}
	}
	return fromApd(n, total)
}

func fnRound(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 2); err != nil {
		return nil, err
	}
	d, ok := toApd(args[0])
	if !ok {
		return nil, errAt(n, "round of %s", value.TypeName(args[0]))
	}
	places := int64(0)
	if len(args) == 2 {
		p, ok := args[1].(value.Int)
		if !ok || p < 0 || p > 20 {
			return nil, errAt(n, "round: places must be an integer between 0 and 20")
		}
		places = int64(p)
	}
	var out apd.Decimal
	if _, err := decimalCtx.Quantize(&out, d, int32(-places)); err != nil {
		return nil, errAt(n, "round: %v", err)
	}
	return fromApd(n, &out)
}

func stringFn(f func(string) string) builtin {
	return func(n call, args []value.Value) (value.Value, error) {
		if err := arity(n, args, 1, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(value.String)
		if !ok {
			return nil, errAt(n, "%s expects a string, got %s", n.fn, value.TypeName(args[0]))
		}
		return value.String(f(string(s))), nil
	}
}

func twoStrings(n call, args []value.Value) (string, string, error) {
	if err := arity(n, args, 2, 2); err != nil {
		return "", "", err
	}
	a, ok1 := args[0].(value.String)
	b, ok2 := args[1].(value.String)
	if !ok1 || !ok2 {
		return "", "", errAt(n, "%s expects two strings", n.fn)
	}
	return string(a), string(b), nil
}

func fnStartsWith(n call, args []value.Value) (value.Value, error) {
	a, b, err := twoStrings(n, args)
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.HasPrefix(a, b)), nil
}

func fnEndsWith(n call, args []value.Value) (value.Value, error) {
	a, b, err := twoStrings(n, args)
	if err != nil {
		return nil, err
	}
	return value.Bool(strings.HasSuffix(a, b)), nil
}

func fnContains(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 2, 2); err != nil {
		return nil, err
	}
	ok, err := contains(n, args[0], args[1])
	if err != nil {
		return nil, err
	}
	return value.Bool(ok), nil
}

func fnKeys(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	obj, ok := args[0].(value.Object)
	if !ok {
		return nil, errAt(n, "keys expects an object, got %s", value.TypeName(args[0]))
	}
	keys := obj.SortedKeys()
	out := make(value.Array, len(keys))
	for i, k := range keys {
		out[i] = value.String(k)
	}
	return out, nil
}

func fnJoin(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 2, 2); err != nil {
		return nil, err
	}
	list, ok := args[0].(value.Array)
	sep, ok2 := args[1].(value.String)
	if !ok || !ok2 {
		return nil, errAt(n, "join expects a list and a separator")
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = Stringify(item)
	}
	out := strings.Join(parts, string(sep))
	if len(out) > maxStringLen {
		return nil, errAt(n, "string too long")
	}
	return value.String(out), nil
}

func fnSplit(n call, args []value.Value) (value.Value, error) {
	s, sep, err := twoStrings(n, args)
	if err != nil {
		return nil, err
	}
	if sep == "" {
		return nil, errAt(n, "split: empty separator")
	}
	parts := strings.Split(s, sep)
	out := make(value.Array, len(parts))
	for i, p := range parts {
		out[i] = value.String(p)
	}
	return out, nil
}

func fnCoalesce(n call, args []value.Value) (value.Value, error) {
	for _, a := range args {
		if !value.IsNull(a) {
			return a, nil
		}
	}
	return value.Null{}, nil
}

func fnGet(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 2, 3); err != nil {
		return nil, err
	}
	v, err := getIndex(n, args[0], args[1])
	if err != nil {
		return nil, err
	}
	if value.IsNull(v) && len(args) == 3 {
		return args[2], nil
	}
	return v, nil
}

func fnIsNull(n call, args []value.Value) (value.Value, error) {
	if err := arity(n, args, 1, 1); err != nil {
		return nil, err
	}
	return value.Bool(value.IsNull(args[0])), nil
}
