package fce_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

func TestGroupBySection_StablePartition(t *testing.T) {
	t.Parallel()

	grip := fce.TestRecord{TestName: "Grip Strength", TestID: "grip-strength"}
	bruce := fce.TestRecord{TestName: "Bruce Treadmill", TestID: "bruce-treadmill"}
	wrist := fce.TestRecord{TestName: "Wrist Flexion", TestID: "wrist-flexion"}
	pinch := fce.TestRecord{TestName: "Key Pinch", TestID: "key-pinch"}
	lumbar := fce.TestRecord{TestName: "Lumbar Flexion", TestID: "lumbar-flexion"}
	ladder := fce.TestRecord{TestName: "Ladder Climb", TestID: "ladder-climb"}

	got := fce.GroupBySection([]fce.TestRecord{grip, bruce, wrist, pinch, lumbar, ladder})

	want := []fce.Group[fce.TestRecord]{
		{Section: fce.SectionStrength, Items: []fce.TestRecord{grip, pinch}},
		{Section: fce.SectionROMSpineExtremity, Items: []fce.TestRecord{lumbar}},
		{Section: fce.SectionROMHandFoot, Items: []fce.TestRecord{wrist}},
		{Section: fce.SectionOccupational, Items: []fce.TestRecord{ladder}},
		{Section: fce.SectionCardio, Items: []fce.TestRecord{bruce}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GroupBySection mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupBySection_EmptySectionsKept(t *testing.T) {
	t.Parallel()

	got := fce.GroupBySection(nil)
	require.Len(t, got, 5)
	for i, g := range got {
		assert.Equal(t, fce.Sections()[i], g.Section)
		assert.NotNil(t, g.Items)
		assert.Empty(t, g.Items)
	}
}

func TestPartition_PreservesRelativeOrder(t *testing.T) {
	t.Parallel()

	type row struct {
		seq     int
		section fce.Section
	}
	var rows []row
	for i := 0; i < 50; i++ {
		rows = append(rows, row{seq: i, section: fce.Sections()[(i*7)%5]})
	}

	groups := fce.Partition(rows, func(r row) fce.Section { return r.section })

	total := 0
	for _, g := range groups {
		last := -1
		for _, r := range g.Items {
			assert.Equal(t, g.Section, r.section)
			assert.Greater(t, r.seq, last)
			last = r.seq
		}
		total += len(g.Items)
	}
	assert.Equal(t, len(rows), total)
}

func TestPartition_InvalidSectionFallsBackToStrength(t *testing.T) {
	t.Parallel()

	groups := fce.Partition([]string{"x"}, func(string) fce.Section { return fce.Section(42) })
	g := fce.Lookup(groups, fce.SectionStrength)
	require.NotNil(t, g)
	assert.Equal(t, []string{"x"}, g.Items)
	assert.Nil(t, fce.Lookup(groups, fce.Section(42)))
}
