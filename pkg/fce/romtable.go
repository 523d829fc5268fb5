package fce

import (
	"regexp"
	"strings"
)

// Normal active range of motion in degrees. Values follow the American
// Academy of Orthopaedic Surgeons, "Joint Motion: Method of Measuring and
// Recording" (1965), except the lumbar spine, which follows the AMA Guides to
// the Evaluation of Permanent Impairment, 5th ed. (2001).
var romTable = map[string]map[string]float64{
	"cervical": {"flexion": 45, "extension": 45, "lateral": 45, "rotation": 60},
	"lumbar":   {"flexion": 60, "extension": 25, "lateral": 25},
	"shoulder": {"flexion": 180, "extension": 60, "abduction": 180, "adduction": 50, "rotation": 90},
	"elbow":    {"flexion": 150, "extension": 0, "pronation": 80, "supination": 80},
	"forearm":  {"pronation": 80, "supination": 80},
	"wrist":    {"flexion": 80, "extension": 70, "radial": 20, "ulnar": 30},
	"hip":      {"flexion": 120, "extension": 30, "abduction": 45, "adduction": 30, "rotation": 45},
	"knee":     {"flexion": 135, "extension": 0},
	"ankle":    {"dorsiflexion": 20, "plantarflexion": 50, "inversion": 35, "eversion": 15},
}

type token struct {
	key     string
	pattern *regexp.Regexp
}

// Region tokens in detection order.
var romRegions = []token{
	{"cervical", regexp.MustCompile(`\bcervical\b`)},
	{"lumbar", regexp.MustCompile(`\b(?:thoraco)?lumbar\b`)},
	{"shoulder", regexp.MustCompile(`\bshoulders?\b`)},
	{"elbow", regexp.MustCompile(`\belbows?\b`)},
	{"forearm", regexp.MustCompile(`\bforearms?\b`)},
	{"wrist", regexp.MustCompile(`\bwrists?\b`)},
	{"hip", regexp.MustCompile(`\bhips?\b`)},
	{"knee", regexp.MustCompile(`\bknees?\b`)},
	{"ankle", regexp.MustCompile(`\bankles?\b`)},
}

// Movement tokens in detection order. Compound movements come before the
// plain ones they contain ("dorsiflexion" before "flexion") and flexion
// before extension, so "Flexion/Extension" pairs read as flexion.
var romMovements = []token{
	{"dorsiflexion", regexp.MustCompile(`dorsi`)},
	{"plantarflexion", regexp.MustCompile(`plantar`)},
	{"pronation", regexp.MustCompile(`pronation`)},
	{"supination", regexp.MustCompile(`supination`)},
	{"rotation", regexp.MustCompile(`rotation`)},
	{"lateral", regexp.MustCompile(`lateral`)},
	{"radial", regexp.MustCompile(`radial`)},
	{"ulnar", regexp.MustCompile(`ulnar`)},
	{"flexion", regexp.MustCompile(`flexion`)},
	{"extension", regexp.MustCompile(`extension`)},
	{"abduction", regexp.MustCompile(`abduction`)},
	{"adduction", regexp.MustCompile(`adduction`)},
	{"inversion", regexp.MustCompile(`inversion`)},
	{"eversion", regexp.MustCompile(`eversion`)},
}

// LookupROM returns the normal range in degrees for the body region and
// movement named in testName. ok is false when either cannot be identified
// or the combination has no reference value.
func LookupROM(testName string) (degrees float64, ok bool) {
	region, movement := ROMKeys(testName)
	if region == "" || movement == "" {
		return 0, false
	}
	degrees, ok = romTable[region][movement]
	return degrees, ok
}

// ROMKeys reports the first region and first movement recognised in
// testName, or empty strings.
func ROMKeys(testName string) (region, movement string) {
	name := normalize(testName)
	region = firstToken(romRegions, name)
	movement = firstToken(romMovements, name)
	return region, movement
}

func firstToken(tokens []token, s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	for _, t := range tokens {
		if t.pattern.MatchString(s) {
			return t.key
		}
	}
	return ""
}
