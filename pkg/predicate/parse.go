package predicate

import "strings"

// Parse parses the textual filter grammar from spec §4.2:
//
//	FILTER := "none"
//	        | "any" FILTER+
//	        | "all" FILTER+
//	        | KEY "=" VALUE          (Starts if VALUE ends with '#')
//	        | KEY ":" VALUE          (Elem)
//	        | KEY ".not." VALUE      (NotEquals)
//	        | KEY                    (Exists)
func Parse(txt string) Condition {
	txt = strings.TrimSpace(txt)

	if txt == "none" {
		return None()
	}

	if strings.HasPrefix(txt, "any ") || strings.HasPrefix(txt, "all ") {
		wantAny := strings.HasPrefix(txt, "any ")
		rest := txt[len("any "):]
		tokens := strings.Fields(rest)
		children := make([]Condition, len(tokens))
		for i, tok := range tokens {
			children[i] = Parse(tok)
		}
		if wantAny {
			return Any(children...)
		}
		return All(children...)
	}

	if k, v, ok := splitAtDelim(txt, "="); ok {
		if strings.HasSuffix(v, "#") {
			return Starts(k, v[:len(v)-1])
		}
		return Equals(k, v)
	}

	if k, v, ok := splitAtDelim(txt, ":"); ok {
		return Elem(k, v)
	}

	if k, v, ok := splitAtDelim(txt, ".not."); ok {
		return NotEquals(k, v)
	}

	return Exists(txt)
}

// Render is the inverse of Parse: it produces a textual filter that
// Parse will read back to an equal Condition, used for the filter
// round-trip testable property. An Equals whose value itself ends in
// '#' cannot be rendered as Equals (it would read back as Starts) — that
// is an inherent ambiguity in the textual grammar, not a bug in Render.
func Render(c Condition) string {
	switch c.Kind {
	case KindNone, "":
		return "none"
	case KindExists:
		return c.Key
	case KindEquals:
		return c.Key + "=" + c.Value
	case KindStarts:
		return c.Key + "=" + c.Value + "#"
	case KindNotEquals:
		return c.Key + ".not." + c.Value
	case KindElem:
		return c.Key + ":" + c.Value
	case KindAny:
		return "any " + renderChildren(c.Children)
	case KindAll:
		return "all " + renderChildren(c.Children)
	default:
		return "none"
	}
}

func renderChildren(cs []Condition) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = Render(c)
	}
	return strings.Join(parts, " ")
}

// splitAtDelim splits txt at the first occurrence of delim, mirroring
// the original implementation's split_at_delim: returns the text before
// and after the delimiter, and whether the delimiter was found at all.
func splitAtDelim(txt, delim string) (before, after string, found bool) {
	idx := strings.Index(txt, delim)
	if idx < 0 {
		return "", "", false
	}
	return txt[:idx], txt[idx+len(delim):], true
}
