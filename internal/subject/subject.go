// Package subject defines the fixed set of Saber 11 subjects and resolves the
// many spellings found in stored exam results to one canonical key.
package subject

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownSubject is returned when a name matches no canonical subject or alias.
var ErrUnknownSubject = errors.New("unknown subject")

// Subject is a canonical subject key.
type Subject string

const (
	Matematicas      Subject = "matematicas"
	Lenguaje         Subject = "lenguaje"
	CienciasSociales Subject = "ciencias_sociales"
	Biologia         Subject = "biologia"
	Quimica          Subject = "quimica"
	Fisica           Subject = "fisica"
	Ingles           Subject = "ingles"
)

// Count is the size of the fixed subject set. A phase is complete once this
// many distinct subjects have been completed.
const Count = 7

// All lists every subject in presentation order.
var All = []Subject{
	Matematicas,
	Lenguaje,
	CienciasSociales,
	Biologia,
	Quimica,
	Fisica,
	Ingles,
}

var displayNames = map[Subject]string{
	Matematicas:      "Matemáticas",
	Lenguaje:         "Lenguaje",
	CienciasSociales: "Ciencias Sociales",
	Biologia:         "Biologia",
	Quimica:          "Quimica",
	Fisica:           "Física",
	Ingles:           "Inglés",
}

// naturales jointly cap at 100 ranking points.
var naturales = map[Subject]bool{
	Biologia: true,
	Quimica:  true,
	Fisica:   true,
}

// aliases maps every spelling seen in historical data to its subject.
// Keys are folded before indexing, so accents and casing variants need not be listed.
var aliases = map[string]Subject{
	"matematicas":                    Matematicas,
	"matematica":                     Matematicas,
	"math":                           Matematicas,
	"maths":                          Matematicas,
	"mathematics":                    Matematicas,
	"lenguaje":                       Lenguaje,
	"lectura critica":                Lenguaje,
	"lectura":                        Lenguaje,
	"language":                       Lenguaje,
	"spanish":                        Lenguaje,
	"ciencias sociales":              CienciasSociales,
	"sociales":                       CienciasSociales,
	"sociales y ciudadanas":          CienciasSociales,
	"ciencias sociales y ciudadanas": CienciasSociales,
	"social studies":                 CienciasSociales,
	"social sciences":                CienciasSociales,
	"biologia":                       Biologia,
	"biology":                        Biologia,
	"quimica":                        Quimica,
	"chemistry":                      Quimica,
	"fisica":                         Fisica,
	"physics":                        Fisica,
	"ingles":                         Ingles,
	"english":                        Ingles,
}

var index = mustBuildIndex(aliases)

func mustBuildIndex(table map[string]Subject) map[string]Subject {
	idx, err := buildIndex(table)
	if err != nil {
		panic(err)
	}
	return idx
}

// buildIndex folds every alias and rejects tables where two aliases collide
// on different subjects or a subject has no entry at all.
func buildIndex(table map[string]Subject) (map[string]Subject, error) {
	idx := make(map[string]Subject, len(table)+len(All))
	for _, s := range All {
		idx[Fold(string(s))] = s
	}
	for alias, s := range table {
		if !s.Valid() {
			return nil, fmt.Errorf("alias %q points at unknown subject %q", alias, s)
		}
		key := Fold(alias)
		if key == "" {
			return nil, fmt.Errorf("alias %q folds to an empty key", alias)
		}
		if prev, ok := idx[key]; ok && prev != s {
			return nil, fmt.Errorf("alias %q maps to both %s and %s", alias, prev, s)
		}
		idx[key] = s
	}
	for _, s := range All {
		if _, ok := idx[Fold(displayNames[s])]; !ok {
			return nil, fmt.Errorf("display name of %s is not resolvable", s)
		}
	}
	return idx, nil
}

// Validate checks the alias table. It is called at startup so a broken table
// stops the process instead of leaking unnormalized names into scores.
func Validate() error {
	_, err := buildIndex(aliases)
	return err
}

// Fold lowercases a name, strips diacritics and collapses separators so that
// "Física", "FISICA" and "fisica" compare equal.
func Fold(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// Parse resolves any known spelling to its canonical subject.
func Parse(name string) (Subject, error) {
	if s, ok := index[Fold(name)]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSubject, name)
}

// Valid reports whether s is one of the canonical subjects.
func (s Subject) Valid() bool {
	_, ok := displayNames[s]
	return ok
}

// DisplayName returns the human-readable Spanish name.
func (s Subject) DisplayName() string {
	if n, ok := displayNames[s]; ok {
		return n
	}
	return string(s)
}

// IsNaturales reports whether s belongs to the natural sciences group.
func (s Subject) IsNaturales() bool {
	return naturales[s]
}

// Order returns the position of s in All, or -1.
func (s Subject) Order() int {
	for i, v := range All {
		if v == s {
			return i
		}
	}
	return -1
}

// UnmarshalText accepts any known alias.
func (s *Subject) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = ""
		return nil
	}
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Set is an ordered, duplicate-free collection of subjects.
type Set []Subject

// Contains reports whether s is in the set.
func (set Set) Contains(s Subject) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Add returns the set with s appended unless already present.
func (set Set) Add(s Subject) Set {
	if set.Contains(s) {
		return set
	}
	return append(set, s)
}

// Remove returns the set without s.
func (set Set) Remove(s Subject) Set {
	out := set[:0:0]
	for _, v := range set {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// Canonical drops invalid and duplicate entries and orders the rest like All.
func (set Set) Canonical() Set {
	out := make(Set, 0, len(set))
	for _, s := range All {
		if set.Contains(s) {
			out = append(out, s)
		}
	}
	return out
}
