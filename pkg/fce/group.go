package fce

// Group is the ordered run of items that landed in one section.
type Group[T any] struct {
	Section Section `json:"section"`
	Items   []T     `json:"items"`
}

// Partition splits items by section. The result always holds one group per
// section in display order, empty groups included, and items keep their
// input order inside each group.
func Partition[T any](items []T, sectionOf func(T) Section) []Group[T] {
	groups := make([]Group[T], sectionCount)
	for i := range groups {
		groups[i] = Group[T]{Section: Section(i), Items: []T{}}
	}
	for _, it := range items {
		s := sectionOf(it)
		if !s.Valid() {
			s = SectionStrength
		}
		groups[s].Items = append(groups[s].Items, it)
	}
	return groups
}

// GroupBySection classifies and partitions records in one step.
func GroupBySection(records []TestRecord) []Group[TestRecord] {
	return Partition(records, Classify)
}

// Lookup returns the group for s, or nil when groups does not contain it.
func Lookup[T any](groups []Group[T], s Section) *Group[T] {
	for i := range groups {
		if groups[i].Section == s {
			return &groups[i]
		}
	}
	return nil
}
