package fce

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Word lists that drive every decision in this package. They are compiled
// into the patterns below once at start-up and never change at run time.
var (
	cardioWords = []string{
		"bruce", "treadmill", "cardio", "mcaft", "kasch", "step-test",
		"aerobic", "heart", "pulse", "ymca", "vo2", "vo2max", "cardiovascular",
	}

	occupationalWords = []string{
		"fingering", "handling", "reach", "balance", "stoop", "walk", "crouch",
		"crawl", "climb", "kneel", "ladder", "push", "pull", "cart", "carry",
		"occupational", "mtm",
	}

	// ROM wording suppresses the occupational rule when present.
	romWordingSubstrings = []string{"flexion", "extension", "abduction", "adduction"}
	romWordingWords      = []string{"rom", "range", "motion"}

	distalWords   = []string{"hand", "foot", "feet", "finger", "thumb", "wrist", "ankle", "digit", "toe", "dip", "pip", "mp"}
	spineWords    = []string{"cervical", "lumbar", "thoracic", "spine", "back"}
	proximalWords = []string{"shoulder", "hip", "knee", "elbow"}

	movementSubstrings = []string{
		"flexion", "extension", "abduction", "adduction", "rotation", "deviation",
		"dorsi", "plantar", "eversion", "inversion",
	}
	movementWords = []string{"range", "rom"}

	romIdentifierWords      = []string{"rom"}
	romIdentifierSubstrings = []string{"goniometer", "goniometric"}

	strengthWords = []string{"grip", "pinch", "lift", "strength", "force", "mvic", "mve", "static", "dynamic"}

	// Norm inference uses plain containment.
	normROMSubstrings = []string{
		"range", "motion", "flexion", "extension", "abduction", "adduction",
		"rotation", "dorsi", "dorsiflexion", "palmar", "radial", "ulnar",
		"deviation", "pronation", "supination", "inversion", "eversion",
	}
	normStrengthSubstrings = []string{"lift", "carry", "push", "pull", "strength", "force"}
)

const manualMuscleMarker = "muscle-"

// patterns is the compiled form of the word lists.
type patterns struct {
	cardio        *regexp.Regexp
	occupational  *regexp.Regexp
	romWording    *regexp.Regexp
	distal        *regexp.Regexp
	spine         *regexp.Regexp
	proximal      *regexp.Regexp
	movement      *regexp.Regexp
	romIdentifier *regexp.Regexp
	strength      *regexp.Regexp
	normROM       *regexp.Regexp
	normStrength  *regexp.Regexp
}

var vocab = compilePatterns()

func compilePatterns() *patterns {
	return &patterns{
		cardio:        regexp.MustCompile(wholeWords(cardioWords, "")),
		occupational:  regexp.MustCompile(wholeWords(occupationalWords, inflection)),
		romWording:    regexp.MustCompile(anyOf(substrings(romWordingSubstrings), wholeWords(romWordingWords, ""))),
		distal:        regexp.MustCompile(wholeWords(distalWords, plural)),
		spine:         regexp.MustCompile(wholeWords(spineWords, "")),
		proximal:      regexp.MustCompile(wholeWords(proximalWords, plural)),
		movement:      regexp.MustCompile(anyOf(substrings(movementSubstrings), wholeWords(movementWords, ""))),
		romIdentifier: regexp.MustCompile(anyOf(wholeWords(romIdentifierWords, ""), substrings(romIdentifierSubstrings))),
		strength:      regexp.MustCompile(wholeWords(strengthWords, inflection)),
		normROM:       regexp.MustCompile(substrings(normROMSubstrings)),
		normStrength:  regexp.MustCompile(substrings(normStrengthSubstrings)),
	}
}

const (
	plural     = "s"
	inflection = "s|es|ed|ing"
)

// wholeWords matches any of words on word boundaries, optionally followed by
// one of the alternatives in suffix.
func wholeWords(words []string, suffix string) string {
	var b strings.Builder
	b.WriteString(`\b(?:`)
	b.WriteString(quoteAll(words))
	b.WriteString(`)`)
	if suffix != "" {
		b.WriteString(`(?:` + suffix + `)?`)
	}
	b.WriteString(`\b`)
	return b.String()
}

func substrings(words []string) string {
	return `(?:` + quoteAll(words) + `)`
}

func anyOf(exprs ...string) string {
	return strings.Join(exprs, "|")
}

func quoteAll(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// normalize folds compatibility forms (full-width letters, ligatures) and
// lower-cases s so every pattern can be written in plain lower-case ASCII.
func normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(norm.NFKC.String(s))
}

// features is the normalised view of a TestRecord that rules evaluate.
type features struct {
	name string
	id   string
	hint string

	rawHint string
}

func extract(r TestRecord) features {
	return features{
		name:    normalize(r.TestName),
		id:      normalize(r.TestID),
		hint:    normalize(r.CategoryHint()),
		rawHint: r.CategoryHint(),
	}
}

func joinText(parts ...string) string {
	return strings.Join(parts, " ")
}

func (f features) manualMuscleTest() bool {
	return strings.Contains(f.id, manualMuscleMarker)
}
