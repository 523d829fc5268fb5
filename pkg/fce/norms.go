package fce

import "strings"

// Reference values for the fixed-pair norm rules, in pounds.
const (
	gripNormLeft      = 110.5
	gripNormRight     = 120.8
	pinchNormLeft     = 85.0
	pinchNormRight    = 90.0
	strengthNormLeft  = 85.0
	strengthNormRight = 90.0
)

// Units attached to inferred norms.
const (
	UnitPounds         = "lb"
	UnitDegrees        = "deg"
	UnitBeatsPerMinute = "bpm"
)

// normRule is one entry of the norm inference table; evaluated in order,
// first match wins.
type normRule struct {
	id    string
	match func(name string) bool
	infer func(name string) NormInfo
}

var normRules = []normRule{
	{
		id:    "empty",
		match: func(name string) bool { return strings.TrimSpace(name) == "" },
		infer: func(string) NormInfo { return otherNorm() },
	},
	{
		id:    "cardio",
		match: vocab.cardio.MatchString,
		infer: func(string) NormInfo { return NormInfo{Unit: UnitBeatsPerMinute, Category: NormCardio} },
	},
	{
		id:    "grip",
		match: func(name string) bool { return strings.Contains(name, "grip") },
		infer: func(string) NormInfo { return pair(gripNormLeft, gripNormRight) },
	},
	{
		id:    "pinch",
		match: func(name string) bool { return strings.Contains(name, "pinch") },
		infer: func(string) NormInfo { return pair(pinchNormLeft, pinchNormRight) },
	},
	{
		id:    "rom",
		match: vocab.normROM.MatchString,
		infer: romNorm,
	},
	{
		id:    "strength",
		match: vocab.normStrength.MatchString,
		infer: func(string) NormInfo { return pair(strengthNormLeft, strengthNormRight) },
	},
}

// InferNorms returns the reference values for a test with the given name.
// Names that match nothing yield an "other" norm with no unit and no values.
func InferNorms(testName string) NormInfo {
	name := normalize(testName)
	for _, r := range normRules {
		if r.match(name) {
			return r.infer(name)
		}
	}
	return otherNorm()
}

func otherNorm() NormInfo {
	return NormInfo{Category: NormOther}
}

func pair(left, right float64) NormInfo {
	return NormInfo{Unit: UnitPounds, Left: ptr(left), Right: ptr(right), Category: NormStrength}
}

func romNorm(name string) NormInfo {
	info := NormInfo{Unit: UnitDegrees, Category: NormROM}
	if deg, ok := LookupROM(name); ok {
		info.Left = ptr(deg)
		info.Right = ptr(deg)
	}
	return info
}
