package fce_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleRecords(n int) []fce.TestRecord {
	names := []string{"Grip Strength", "Bruce Treadmill", "Wrist Flexion", "Ladder Climb", "Lumbar Flexion", "Unknown"}
	out := make([]fce.TestRecord, n)
	for i := range out {
		name := names[i%len(names)]
		out[i] = fce.TestRecord{TestName: name, TestID: fmt.Sprintf("t-%d", i)}
	}
	return out
}

func TestClassifyAll_MatchesSequential(t *testing.T) {
	records := sampleRecords(1000)

	for _, workers := range []int{0, 1, 4, 64} {
		got, err := fce.ClassifyAll(context.Background(), records, workers)
		require.NoError(t, err)
		require.Len(t, got, len(records))
		for i, r := range records {
			assert.Equal(t, fce.Classify(r), got[i], "workers=%d index=%d", workers, i)
		}
	}
}

func TestExplainAll_MatchesExplain(t *testing.T) {
	records := sampleRecords(60)

	got, err := fce.ExplainAll(context.Background(), records, 3)
	require.NoError(t, err)
	for i, r := range records {
		assert.Equal(t, fce.Explain(r), got[i])
	}
}

func TestInferAll_MatchesSequential(t *testing.T) {
	names := []string{"Grip", "", "Shoulder Flexion", "Bruce", "Carry", "Nothing"}

	got, err := fce.InferAll(context.Background(), names, 2)
	require.NoError(t, err)
	require.Len(t, got, len(names))
	for i, n := range names {
		assert.True(t, fce.InferNorms(n).Equal(got[i]), n)
	}
}

func TestClassifyAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := fce.ClassifyAll(ctx, sampleRecords(10), 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}

func TestClassifyAll_Empty(t *testing.T) {
	got, err := fce.ClassifyAll(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
