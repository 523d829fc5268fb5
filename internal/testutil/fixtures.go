package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// FixedTime is the clock used by fixtures and fake clocks.
var FixedTime = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

// FixedClock returns a clock that always reports FixedTime.
func FixedClock() func() time.Time {
	return func() time.Time { return FixedTime }
}

// SampleEvaluationID is the id carried by SampleEvaluation.
var SampleEvaluationID = uuid.MustParse("6f1c2b7e-4f0a-4c36-9d8e-2a4b1d0f5e11")

// Both returns a measurement taken on both sides.
func Both(left, right float64, unit string) evaluation.Measurement {
	return evaluation.Measurement{Left: &left, Right: &right, Unit: unit}
}

// Performed is shorthand for a performed test without an observed result.
func Performed(id, name string) evaluation.PerformedTest {
	return evaluation.PerformedTest{TestRecord: fce.TestRecord{TestID: id, TestName: name}}
}

// SampleEvaluation returns a fresh evaluation with one test in each section
// and one test that has no catalog citations.
//
//	Strength                   Grip Strength, Unknown Test
//	ROM Total Spine/Extremity  Cervical Rotation
//	ROM Hand/Foot              Wrist Flexion/Extension
//	Occupational Tasks         Two-Handed Carry
//	Cardio                     Bruce Treadmill Test
func SampleEvaluation() *evaluation.Evaluation {
	grip := Performed("grip-strength", "Grip Strength")
	grip.Observed = Both(98, 104.5, fce.UnitPounds)

	cervical := Performed("cervical-rom-rotation", "Cervical Rotation")
	cervical.Observed = Both(55, 58, fce.UnitDegrees)

	return &evaluation.Evaluation{
		ID:          SampleEvaluationID,
		Subject:     "J. Doe",
		Examiner:    "A. Therapist, OT",
		PerformedAt: FixedTime.Add(-48 * time.Hour),
		Tests: []evaluation.PerformedTest{
			Performed("bruce-treadmill", "Bruce Treadmill Test"),
			grip,
			Performed("wrist-rom-flexion-extension", "Wrist Flexion/Extension"),
			cervical,
			Performed("occupational-carry", "Two-Handed Carry"),
			Performed("xyz", "Unknown Test"),
		},
	}
}
