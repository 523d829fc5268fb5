package fce

// Rule is one entry of the classification table. Rules are evaluated in
// table order and the first one that matches decides the section.
type Rule struct {
	// ID is a stable identifier reported by Explain and the audit endpoints.
	ID string

	// Description says in plain words what the rule looks for.
	Description string

	eval func(f features) (Section, bool)
}

// Evaluate applies this single rule to r in isolation.
func (r Rule) Evaluate(rec TestRecord) (Section, bool) {
	return r.eval(extract(rec))
}

// Decision is the outcome of classifying one record.
type Decision struct {
	Section Section `json:"section"`
	RuleID  string  `json:"ruleId"`
}

// Rule identifiers, in evaluation order.
const (
	RuleExplicitCategory  = "explicit-category"
	RuleCardio            = "cardio"
	RuleOccupational      = "occupational"
	RuleROMHandFoot       = "rom-hand-foot"
	RuleROMSpineExtremity = "rom-spine-extremity"
	RuleStrengthKeyword   = "strength-keyword"
	RuleDefault           = "default"
)

// fixed builds a rule that yields section whenever match holds.
func fixed(id, description string, section Section, match func(f features) bool) Rule {
	return Rule{
		ID:          id,
		Description: description,
		eval: func(f features) (Section, bool) {
			if match(f) {
				return section, true
			}
			return 0, false
		},
	}
}

// classificationRules is the priority table. Reordering it changes results
// for every caller.
var classificationRules = []Rule{
	{
		ID:          RuleExplicitCategory,
		Description: "category (or legacy testType) is exactly a canonical section label",
		eval: func(f features) (Section, bool) {
			return ParseSection(f.rawHint)
		},
	},
	fixed(RuleCardio,
		"cardio protocol keyword anywhere in name, id or category",
		SectionCardio,
		func(f features) bool {
			return vocab.cardio.MatchString(joinText(f.name, f.id, f.hint))
		}),
	fixed(RuleOccupational,
		"occupational task keyword in id or name, unless ROM wording is also present",
		SectionOccupational,
		func(f features) bool {
			text := joinText(f.id, f.name)
			return vocab.occupational.MatchString(text) && !vocab.romWording.MatchString(text)
		}),
	fixed(RuleROMHandFoot,
		"distal body part and a movement both named in the test name",
		SectionROMHandFoot,
		func(f features) bool {
			return vocab.distal.MatchString(f.name) && vocab.movement.MatchString(f.name)
		}),
	fixed(RuleROMSpineExtremity,
		"spine or proximal joint with a movement (not a manual muscle test), or a ROM/goniometer id or category",
		SectionROMSpineExtremity,
		func(f features) bool {
			text := joinText(f.name, f.id)
			region := vocab.spine.MatchString(text) || vocab.proximal.MatchString(text)
			if region && vocab.movement.MatchString(text) && !f.manualMuscleTest() {
				return true
			}
			return vocab.romIdentifier.MatchString(f.id) || vocab.romIdentifier.MatchString(f.hint)
		}),
	fixed(RuleStrengthKeyword,
		"strength keyword in id or name, or a manual muscle test id",
		SectionStrength,
		func(f features) bool {
			return vocab.strength.MatchString(joinText(f.id, f.name)) || f.manualMuscleTest()
		}),
	fixed(RuleDefault,
		"nothing else matched",
		SectionStrength,
		func(features) bool { return true }),
}

// Rules returns a copy of the classification table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(classificationRules))
	copy(out, classificationRules)
	return out
}

// Explain classifies r and reports which rule decided it.
func Explain(r TestRecord) Decision {
	f := extract(r)
	for _, rule := range classificationRules {
		if s, ok := rule.eval(f); ok {
			return Decision{Section: s, RuleID: rule.ID}
		}
	}
	// Unreachable while the table ends with the default rule.
	return Decision{Section: SectionStrength, RuleID: RuleDefault}
}

// Classify returns the report section for r. It is total: every input,
// including an all-empty record, maps to exactly one section.
func Classify(r TestRecord) Section {
	return Explain(r).Section
}
