package utterance

import "regexp"

// slotAnnotation matches inline [value](slotName) annotations. The value
// group forbids nested brackets so a single left-to-right scan is
// unambiguous; overlapping annotations resolve to the first match.
var slotAnnotation = regexp.MustCompile(`\[([^\[\]]+?)\]\(([^\)]+?)\)`)

// ParsedSlot is one slot annotation lifted out of a raw training utterance.
// Start and End are byte offsets of the value within the canonical
// (annotation-stripped) text.
type ParsedSlot struct {
	Name  string
	Value string
	Start int
	End   int
}

// StripAnnotations removes [value](slot) annotations from raw and returns
// the canonical text plus the parsed slots with offsets relative to it.
// Malformed annotations, including an empty value, are left in place as
// plain text.
func StripAnnotations(raw string) (string, []ParsedSlot) {
	matches := slotAnnotation.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return raw, nil
	}

	var canonical []byte
	var slots []ParsedSlot
	prev := 0
	for _, m := range matches {
		full0, full1 := m[0], m[1]
		value := raw[m[2]:m[3]]
		name := raw[m[4]:m[5]]

		canonical = append(canonical, raw[prev:full0]...)
		start := len(canonical)
		canonical = append(canonical, value...)
		slots = append(slots, ParsedSlot{
			Name:  name,
			Value: value,
			Start: start,
			End:   start + len(value),
		})
		prev = full1
	}
	canonical = append(canonical, raw[prev:]...)
	return string(canonical), slots
}
