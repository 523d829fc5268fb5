package reporting_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	"github.com/turtacn/FCE-Intelligence/internal/domain/evaluation"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

func newTestBuilder(t *testing.T, opts ...reporting.BuilderOption) *reporting.Builder {
	t.Helper()
	opts = append([]reporting.BuilderOption{reporting.WithClock(testutil.FixedClock())}, opts...)
	return reporting.NewBuilder(citation.MustBuiltin(), opts...)
}

func entryIDs(b reporting.SectionBlock) []string {
	ids := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		ids[i] = e.Test.TestID
	}
	return ids
}

func TestBuilder_Build_SectionsInDisplayOrder(t *testing.T) {
	rep, err := newTestBuilder(t).Build(context.Background(), testutil.SampleEvaluation(), reporting.ModeFinal)
	require.NoError(t, err)

	require.Len(t, rep.Sections, 5)
	for i, s := range fce.Sections() {
		assert.Equal(t, s, rep.Sections[i].Section)
	}

	want := map[fce.Section][]string{
		fce.SectionStrength:          {"grip-strength", "xyz"},
		fce.SectionROMSpineExtremity: {"cervical-rom-rotation"},
		fce.SectionROMHandFoot:       {"wrist-rom-flexion-extension"},
		fce.SectionOccupational:      {"occupational-carry"},
		fce.SectionCardio:            {"bruce-treadmill"},
	}
	for _, b := range rep.Sections {
		assert.Equal(t, want[b.Section], entryIDs(b), b.Section.String())
	}
	assert.Equal(t, 6, rep.EntryCount())
	assert.Equal(t, reporting.ModeFinal, rep.Mode)
	assert.Equal(t, testutil.FixedTime, rep.GeneratedAt)
	assert.Equal(t, testutil.SampleEvaluationID, rep.EvaluationID)
	assert.Equal(t, "J. Doe", rep.Subject)
}

func TestBuilder_Build_Entries(t *testing.T) {
	rep, err := newTestBuilder(t).Build(context.Background(), testutil.SampleEvaluation(), reporting.ModePreview)
	require.NoError(t, err)

	strength := rep.Section(fce.SectionStrength)
	require.NotNil(t, strength)
	require.Len(t, strength.Entries, 2)

	grip := strength.Entries[0]
	assert.Equal(t, fce.RuleStrengthKeyword, grip.RuleID)
	assert.Equal(t, fce.NormStrength, grip.Norms.Category)
	assert.Equal(t, "110.5 (L) | 120.8 (R) lb", grip.Comparison)
	assert.Equal(t, "98 (L) | 104.5 (R) lb", grip.Result)
	assert.Equal(t, []string{"mathiowetz-1985", "mathiowetz-1984"}, grip.CitationIDs)

	unknown := strength.Entries[1]
	assert.Equal(t, fce.RuleDefault, unknown.RuleID)
	assert.Equal(t, fce.NormOther, unknown.Norms.Category)
	assert.Empty(t, unknown.CitationIDs)

	cardio := rep.Section(fce.SectionCardio).Entries[0]
	assert.Equal(t, fce.RuleCardio, cardio.RuleID)
	assert.Equal(t, "N/A (L) | N/A (R) bpm", cardio.Comparison)

	cervical := rep.Section(fce.SectionROMSpineExtremity).Entries[0]
	assert.Equal(t, "60 (L) | 60 (R) deg", cervical.Comparison)

	carry := rep.Section(fce.SectionOccupational).Entries[0]
	assert.Equal(t, fce.RuleOccupational, carry.RuleID)
	assert.Equal(t, "85 (L) | 90 (R) lb", carry.Comparison)
}

func TestBuilder_Build_BibliographyInFirstCitedOrder(t *testing.T) {
	rep, err := newTestBuilder(t).Build(context.Background(), testutil.SampleEvaluation(), reporting.ModeFinal)
	require.NoError(t, err)

	ids := make([]string, len(rep.References))
	for i, c := range rep.References {
		ids[i] = c.ID
	}
	// aaos-1965 is cited by both the cervical and the wrist test.
	assert.Equal(t, []string{
		"mathiowetz-1985", "mathiowetz-1984",
		"aaos-1965", "ama-guides-5",
		"norkin-white-2016",
		"dot-1991",
		"bruce-1973",
	}, ids)
}

func TestBuilder_Build_PreviewMatchesFinal(t *testing.T) {
	b := newTestBuilder(t, reporting.WithWorkers(2))
	preview, err := b.Build(context.Background(), testutil.SampleEvaluation(), reporting.ModePreview)
	require.NoError(t, err)
	final, err := b.Build(context.Background(), testutil.SampleEvaluation(), reporting.ModeFinal)
	require.NoError(t, err)

	preview.Mode = final.Mode
	if diff := cmp.Diff(final, preview); diff != "" {
		t.Errorf("preview and final differ (-final +preview):\n%s", diff)
	}
}

func TestBuilder_Build_EmptySectionsArePresent(t *testing.T) {
	ev := testutil.SampleEvaluation()
	ev.Tests = ev.Tests[1:2]

	rep, err := newTestBuilder(t).Build(context.Background(), ev, reporting.ModePreview)
	require.NoError(t, err)
	require.Len(t, rep.Sections, 5)
	for _, b := range rep.Sections[1:] {
		assert.Empty(t, b.Entries, b.Section.String())
	}
	assert.Len(t, rep.References, 2)
}

func TestBuilder_Build_Errors(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, reporting.WithMaxBatchSize(3))

	_, err := b.Build(ctx, testutil.SampleEvaluation(), reporting.Mode("draft"))
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = b.Build(ctx, nil, reporting.ModePreview)
	assert.True(t, errors.IsValidation(err))

	_, err = b.Build(ctx, &evaluation.Evaluation{Subject: "x"}, reporting.ModePreview)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEvaluationNoTest))

	_, err = b.Build(ctx, testutil.SampleEvaluation(), reporting.ModePreview)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBatchTooLarge))
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestBuilder(t).Build(ctx, testutil.SampleEvaluation(), reporting.ModeFinal)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBatchCancelled))
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestBuilder_Build_ResolverError(t *testing.T) {
	boom := errors.New(errors.ErrCodeDatabaseError, "connection refused")
	resolver := citation.ResolverFunc(func(_ context.Context, testID string) ([]*citation.Citation, error) {
		if testID == "bruce-treadmill" {
			return nil, boom
		}
		return nil, nil
	})

	_, err := reporting.NewBuilder(resolver).Build(context.Background(), testutil.SampleEvaluation(), reporting.ModeFinal)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDatabaseError, errors.GetCode(err))
}

func TestBuilder_Build_ResolvesEachTestOnce(t *testing.T) {
	counting := &testutil.CountingResolver{Next: citation.MustBuiltin()}
	ev := testutil.SampleEvaluation()
	ev.Tests = append(ev.Tests, ev.Tests[1], evaluation.PerformedTest{TestRecord: fce.TestRecord{TestName: "No Id"}})

	rep, err := reporting.NewBuilder(counting).Build(context.Background(), ev, reporting.ModeFinal)
	require.NoError(t, err)
	assert.Equal(t, 6, counting.Calls())
	assert.Equal(t, 8, rep.EntryCount())
}

func TestNewBuilder_NilResolverPanics(t *testing.T) {
	assert.Panics(t, func() { reporting.NewBuilder(nil) })
}
