package fce

// TestRecord describes one performed test as supplied by the upstream
// evaluation module. None of the fields is required.
type TestRecord struct {
	TestName string `json:"testName" yaml:"testName"`
	TestID   string `json:"testId" yaml:"testId"`

	// Category is an optional pre-assigned section label. When it matches a
	// canonical label exactly it overrides every heuristic.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// TestType is the legacy spelling of Category and is only consulted when
	// Category is empty.
	TestType string `json:"testType,omitempty" yaml:"testType,omitempty"`
}

// CategoryHint returns Category, falling back to TestType.
func (r TestRecord) CategoryHint() string {
	if r.Category != "" {
		return r.Category
	}
	return r.TestType
}

// NormCategory is the coarse grouping attached to inferred norms. It is a
// display concern and deliberately a different type from Section.
type NormCategory string

const (
	NormStrength NormCategory = "strength"
	NormROM      NormCategory = "rom"
	NormCardio   NormCategory = "cardio"
	NormOther    NormCategory = "other"
)

// NormInfo is the reference value pair printed beside a test result. Left and
// Right are nil when no reference exists; Unit is empty when not applicable.
type NormInfo struct {
	Unit     string       `json:"unit"`
	Left     *float64     `json:"left"`
	Right    *float64     `json:"right"`
	Category NormCategory `json:"category"`
}

// HasValues reports whether at least one side carries a reference value.
func (n NormInfo) HasValues() bool {
	return n.Left != nil || n.Right != nil
}

// Equal compares two NormInfo values by content rather than pointer identity.
func (n NormInfo) Equal(o NormInfo) bool {
	return n.Unit == o.Unit && n.Category == o.Category &&
		floatPtrEqual(n.Left, o.Left) && floatPtrEqual(n.Right, o.Right)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ptr(v float64) *float64 { return &v }
