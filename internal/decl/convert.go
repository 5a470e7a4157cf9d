package decl

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/zclconf/go-cty/cty"
)

// ToCty converts a JSON-decoded Go value into a cty value. Snapshots store
// plain Go maps; evaluation and diffing work on cty.
func ToCty(v any) cty.Value {
	switch v := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case bool:
		return cty.BoolVal(v)
	case string:
		return cty.StringVal(v)
	case int:
		return cty.NumberIntVal(int64(v))
	case int64:
		return cty.NumberIntVal(v)
	case float64:
		return cty.NumberFloatVal(v)
	case []any:
		if len(v) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(v))
		for i, e := range v {
			vals[i] = ToCty(e)
		}
		return cty.TupleVal(vals)
	case map[string]any:
		if len(v) == 0 {
			return cty.EmptyObjectVal
		}
		vals := make(map[string]cty.Value, len(v))
		for k, e := range v {
			vals[k] = ToCty(e)
		}
		return cty.ObjectVal(vals)
	case map[string]string:
		if len(v) == 0 {
			return cty.EmptyObjectVal
		}
		vals := make(map[string]cty.Value, len(v))
		for k, e := range v {
			vals[k] = cty.StringVal(e)
		}
		return cty.ObjectVal(vals)
	default:
		return cty.StringVal(fmt.Sprintf("%v", v))
	}
}

// FromCty converts a known cty value into plain Go for provider payloads
// and snapshot storage. Unknown values have no Go equivalent; callers must
// resolve them first.
func FromCty(v cty.Value) any {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	t := v.Type()
	switch {
	case t == cty.Bool:
		return v.True()
	case t == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f
	case t == cty.String:
		return v.AsString()
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, FromCty(ev))
		}
		return out
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			out[kv.AsString()] = FromCty(ev)
		}
		return out
	default:
		return nil
	}
}

// MapFromCty converts an attribute map wholesale.
func MapFromCty(attrs map[string]cty.Value) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = FromCty(v)
	}
	return out
}

// OutputsVal wraps a snapshot outputs map as a cty object for reference
// resolution.
func OutputsVal(outputs map[string]any) cty.Value {
	if len(outputs) == 0 {
		return cty.EmptyObjectVal
	}
	vals := make(map[string]cty.Value, len(outputs))
	for k, v := range outputs {
		vals[k] = ToCty(v)
	}
	return cty.ObjectVal(vals)
}

func settingString(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("value must be a constant")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return strconv.FormatBool(v.True()), nil
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	default:
		return "", fmt.Errorf("unsupported type %s", v.Type().FriendlyName())
	}
}

// SortedKeys is shared by diff building and rendering so attribute order is
// stable everywhere.
func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
