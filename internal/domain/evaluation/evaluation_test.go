package evaluation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

func test(id, name string) PerformedTest {
	return PerformedTest{TestRecord: fce.TestRecord{TestID: id, TestName: name}}
}

func TestNewEvaluation(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("X", 3600))
	ev := NewEvaluation("J. Doe", "OT Smith", at, test("grip-strength", "Grip Strength"))

	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, time.UTC, ev.PerformedAt.Location())
	assert.NoError(t, ev.Validate())
}

func TestValidate(t *testing.T) {
	var nilEv *Evaluation
	assert.True(t, errors.IsValidation(nilEv.Validate()))

	ev := NewEvaluation(" ", "", time.Now(), test("a", "A"))
	assert.True(t, errors.IsValidation(ev.Validate()))

	ev = NewEvaluation("Subject", "", time.Now())
	err := ev.Validate()
	assert.True(t, errors.IsCode(err, errors.ErrCodeEvaluationNoTest))
	assert.True(t, errors.IsValidation(err))
}

func TestRecordsAndTestIDs(t *testing.T) {
	ev := NewEvaluation("S", "", time.Now(),
		test("grip-strength", "Grip Strength"),
		test("", "Unnamed"),
		test("bruce-treadmill", "Bruce Treadmill Test"),
		test("grip-strength", "Grip Strength (retest)"),
	)

	recs := ev.Records()
	require.Len(t, recs, 4)
	assert.Equal(t, "Unnamed", recs[1].TestName)
	assert.Equal(t, []string{"grip-strength", "bruce-treadmill"}, ev.TestIDs())
}

func TestEnsureID(t *testing.T) {
	ev := &Evaluation{}
	ev.EnsureID()
	id := ev.ID
	assert.NotEqual(t, uuid.Nil, id)
	ev.EnsureID()
	assert.Equal(t, id, ev.ID)
}

func TestPerformedTest_JSONIsFlat(t *testing.T) {
	in := `{"testName":"Grip Strength","testId":"grip-strength","observed":{"left":95.5,"unit":"lb"}}`
	var pt PerformedTest
	require.NoError(t, json.Unmarshal([]byte(in), &pt))

	assert.Equal(t, "grip-strength", pt.TestID)
	require.NotNil(t, pt.Observed.Left)
	assert.Equal(t, 95.5, *pt.Observed.Left)
	assert.Nil(t, pt.Observed.Right)
	assert.True(t, pt.Observed.Measured())
}
