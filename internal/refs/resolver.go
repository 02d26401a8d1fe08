// Package refs turns rendered accessibility-tree text into stable element
// references. A reference is a short handle like "e3" backed by a
// (role, name, occurrence) triple, so it survives JSON round-trips and can be
// rebuilt from scratch after every page mutation.
package refs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownRef reports a reference that is absent from the current table,
// typically because a navigation invalidated it.
var ErrUnknownRef = errors.New("unknown ref")

// MaxRefs bounds how many references a single build pass will assign.
// Elements past the cap stay unaddressable until the page shrinks.
const MaxRefs = 500

// Entry locates one interactive element without holding a DOM handle.
// Occurrence disambiguates elements that share a role and name: it is the
// number of earlier (role, name) twins in document order.
type Entry struct {
	Role       string `json:"role"`
	Name       string `json:"name"`
	Occurrence int    `json:"occurrence"`
}

// Table maps reference IDs ("e1", "e2", ...) to entries.
type Table map[string]Entry

// nodeLine matches one accessibility-tree line: indentation, optional list
// dash, a role word, and an optional quoted name. Trailing decorations such
// as [selected] are ignored. This grammar is a stable contract independent of
// the engine's exact output format.
var nodeLine = regexp.MustCompile(`^(\s*)-?\s*([A-Za-z]+)(\s+"([^"]*)")?`)

// allowedRoles are the interactive roles that receive references.
var allowedRoles = map[string]bool{
	"button":     true,
	"link":       true,
	"textbox":    true,
	"checkbox":   true,
	"radio":      true,
	"menuitem":   true,
	"tab":        true,
	"searchbox":  true,
	"slider":     true,
	"spinbutton": true,
	"switch":     true,
}

// excludedRoles are complex widgets that can open native pickers and
// desynchronize automation, so they never receive references.
var excludedRoles = map[string]bool{
	"combobox": true,
	"listbox":  true,
}

// denyName filters elements whose accessible name suggests a native
// date/calendar UI; interacting with those is non-deterministic.
var denyName = regexp.MustCompile(`(?i)\b(date|calendar|picker)\b`)

type pairKey struct {
	role string
	name string
}

// match is the shared filtering predicate for the build and annotate passes.
// Both passes MUST apply it identically or refs drift from their anchors.
func match(line string) (role, name string, end int, ok bool) {
	m := nodeLine.FindStringSubmatchIndex(line)
	if m == nil {
		return "", "", 0, false
	}
	role = strings.ToLower(line[m[4]:m[5]])
	if m[8] >= 0 {
		name = line[m[8]:m[9]]
	}
	if excludedRoles[role] || denyName.MatchString(name) {
		return "", "", 0, false
	}
	if !allowedRoles[role] {
		return "", "", 0, false
	}
	return role, name, m[1], true
}

// Build walks the tree text in document order and assigns sequential
// references to every allowed interactive node, up to MaxRefs.
func Build(tree string) Table {
	table := make(Table)
	counts := make(map[pairKey]int)
	next := 1

	for _, line := range strings.Split(tree, "\n") {
		role, name, _, ok := match(line)
		if !ok {
			continue
		}
		key := pairKey{role, name}
		occ := counts[key]
		counts[key]++
		table[fmt.Sprintf("e%d", next)] = Entry{Role: role, Name: name, Occurrence: occ}
		next++
		if next > MaxRefs {
			break
		}
	}
	return table
}

// Annotate re-walks the tree text independently, recomputing occurrence
// counts in the same document order, and splices " [ref=eN]" into each line
// whose (role, name, occurrence) triple exists in the table. Lines without a
// table entry (including anything past the build cap) pass through unchanged.
func Annotate(tree string, table Table) string {
	byTriple := make(map[Entry]string, len(table))
	for ref, e := range table {
		byTriple[e] = ref
	}

	counts := make(map[pairKey]int)
	lines := strings.Split(tree, "\n")
	for i, line := range lines {
		role, name, end, ok := match(line)
		if !ok {
			continue
		}
		key := pairKey{role, name}
		occ := counts[key]
		counts[key]++

		ref, found := byTriple[Entry{Role: role, Name: name, Occurrence: occ}]
		if !found {
			continue
		}
		lines[i] = line[:end] + " [ref=" + ref + "]" + line[end:]
	}
	return strings.Join(lines, "\n")
}

// Resolve looks up a reference in the current table. A missing ref usually
// means the page mutated since the last snapshot.
func Resolve(table Table, ref string) (Entry, error) {
	e, ok := table[ref]
	if !ok {
		return Entry{}, fmt.Errorf("%w %q: the page may have changed; fetch a new snapshot to get fresh refs", ErrUnknownRef, ref)
	}
	return e, nil
}
