package fce_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

func TestSections_DisplayOrder(t *testing.T) {
	t.Parallel()

	var labels []string
	for _, s := range fce.Sections() {
		require.True(t, s.Valid())
		labels = append(labels, s.String())
	}
	assert.Equal(t, []string{
		"Strength",
		"ROM Total Spine/Extremity",
		"ROM Hand/Foot",
		"Occupational Tasks",
		"Cardio",
	}, labels)
}

func TestParseSection(t *testing.T) {
	t.Parallel()

	for _, s := range fce.Sections() {
		got, ok := fce.ParseSection(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}

	for _, bad := range []string{"", "strength", " Strength", "ROM", "Cardio "} {
		_, ok := fce.ParseSection(bad)
		assert.False(t, ok, "%q", bad)
	}
}

func TestSection_JSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(map[string]fce.Section{"s": fce.SectionROMHandFoot})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"ROM Hand/Foot"}`, string(b))

	var out struct {
		S fce.Section `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"Occupational Tasks"}`), &out))
	assert.Equal(t, fce.SectionOccupational, out.S)

	assert.Error(t, json.Unmarshal([]byte(`{"s":"Balance"}`), &out))
}

func TestSection_Invalid(t *testing.T) {
	t.Parallel()

	bad := fce.Section(9)
	assert.False(t, bad.Valid())
	assert.Equal(t, "Section(9)", bad.String())
	_, err := bad.MarshalText()
	assert.Error(t, err)
}

func TestTestRecord_CategoryHint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Cardio", fce.TestRecord{Category: "Cardio", TestType: "Strength"}.CategoryHint())
	assert.Equal(t, "Strength", fce.TestRecord{TestType: "Strength"}.CategoryHint())
	assert.Equal(t, "", fce.TestRecord{}.CategoryHint())
}
