package domain

import "strings"

// TownSeparator delimits segments in the town column description.
const TownSeparator = " - "

// TownEntry maps a contract town code to its display name.
type TownEntry struct {
	Code string
	Name string
}

// ParseTownMapping turns the bldg_contract_town metadata description into
// (code, name) pairs.
//
// The description is split on TownSeparator into N segments and each adjacent
// pair (i, i+1) yields one entry: the code is the last word of segment i and
// the name is segment i+1 without its last word (that word is the next code).
// A segment without spaces is used whole on either side. N segments give N-1
// entries; fewer than two give none.
//
// Nothing is validated: extra separators or a multi-word final segment
// produce wrong pairs silently.
func ParseTownMapping(description string) []TownEntry {
	segments := strings.Split(description, TownSeparator)
	if len(segments) < 2 {
		return nil
	}

	entries := make([]TownEntry, 0, len(segments)-1)
	for i := 0; i < len(segments)-1; i++ {
		entries = append(entries, TownEntry{
			Code: lastWord(segments[i]),
			Name: withoutLastWord(segments[i+1]),
		})
	}
	return entries
}

func lastWord(s string) string {
	idx := strings.LastIndex(s, " ")
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

func withoutLastWord(s string) string {
	idx := strings.LastIndex(s, " ")
	if idx < 0 {
		return s
	}
	return s[:idx]
}

// TownIndex looks up display names by town code.
type TownIndex map[string]string

// NewTownIndex builds a TownIndex. When several entries share a code the
// first one wins.
func NewTownIndex(entries []TownEntry) TownIndex {
	idx := make(TownIndex, len(entries))
	for _, e := range entries {
		if _, ok := idx[e.Code]; ok {
			continue
		}
		idx[e.Code] = e.Name
	}
	return idx
}

// Lookup returns the display name for code.
func (t TownIndex) Lookup(code string) (string, bool) {
	name, ok := t[code]
	return name, ok
}
