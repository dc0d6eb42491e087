package classification

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// asBool accepts JSON booleans, numbers and the usual truthy strings.
// ok is false when the value is absent or of an unusable type.
func asBool(v any) (value bool, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0", "":
			return false, true
		}
	}
	return false, false
}

// asNumber reads JSON numbers and numeric strings.
func asNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// points truncates a component and clamps it to [lo, hi]. The clamp happens
// before the integer conversion so huge values cannot wrap.
func points(v any, lo, hi int) int {
	f, ok := asNumber(v)
	if !ok {
		return 0
	}
	return int(math.Max(float64(lo), math.Min(float64(hi), math.Trunc(f))))
}

func positive(v any, hi int) int {
	return points(v, 0, hi)
}

// penalty treats the magnitude as a deduction regardless of the sign the
// model used.
func penalty(v any, lo int) int {
	f, ok := asNumber(v)
	if !ok {
		return 0
	}
	return points(-math.Abs(f), lo, 0)
}

// asParticipants reads a count such as 1200, 1200.0 or "1,200". Negative or
// unrepresentable counts are dropped.
func asParticipants(v any) *int64 {
	f, ok := asNumber(v)
	if !ok || f < 0 || f >= math.MaxInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

// asTags accepts a JSON list or a comma separated string.
func asTags(v any) []string {
	tags := []string{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := asString(item); s != "" {
				tags = append(tags, s)
			}
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				tags = append(tags, s)
			}
		}
	}
	return tags
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
