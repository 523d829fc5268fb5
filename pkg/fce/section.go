// Package fce is the functional-capacity-evaluation engine: it assigns every
// performed test to one of the five report sections and infers the reference
// norms printed next to the observed values.
//
// The package is pure. Every exported function is deterministic, never
// panics on any input and holds no mutable state, so the interactive preview
// paths and the batch report worker can call it concurrently and always agree.
package fce

import (
	"fmt"
)

// Section is the report grouping a test is placed under. The set is closed:
// only the constants below are valid values.
type Section uint8

const (
	SectionStrength Section = iota
	SectionROMSpineExtremity
	SectionROMHandFoot
	SectionOccupational
	SectionCardio

	sectionCount
)

var sectionLabels = [sectionCount]string{
	SectionStrength:          "Strength",
	SectionROMSpineExtremity: "ROM Total Spine/Extremity",
	SectionROMHandFoot:       "ROM Hand/Foot",
	SectionOccupational:      "Occupational Tasks",
	SectionCardio:            "Cardio",
}

// Sections returns all sections in display order.
func Sections() []Section {
	out := make([]Section, sectionCount)
	for i := range out {
		out[i] = Section(i)
	}
	return out
}

// String returns the canonical label, e.g. "ROM Hand/Foot".
func (s Section) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Section(%d)", uint8(s))
	}
	return sectionLabels[s]
}

// Valid reports whether s is one of the five defined sections.
func (s Section) Valid() bool {
	return s < sectionCount
}

// ParseSection matches label exactly against the canonical labels. Case and
// surrounding whitespace are significant.
func ParseSection(label string) (Section, bool) {
	for i, l := range sectionLabels {
		if l == label {
			return Section(i), true
		}
	}
	return SectionStrength, false
}

// MarshalText encodes the section as its canonical label.
func (s Section) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("fce: invalid section %d", uint8(s))
	}
	return []byte(sectionLabels[s]), nil
}

// UnmarshalText accepts only canonical labels.
func (s *Section) UnmarshalText(text []byte) error {
	v, ok := ParseSection(string(text))
	if !ok {
		return fmt.Errorf("fce: unknown section %q", string(text))
	}
	*s = v
	return nil
}
