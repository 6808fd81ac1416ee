package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		failed       bool
		allowFailure bool
		want         Outcome
	}{
		{name: "success", failed: false, allowFailure: false, want: OutcomePassed},
		{name: "success on exempt entry", failed: false, allowFailure: true, want: OutcomePassed},
		{name: "fatal failure", failed: true, allowFailure: false, want: OutcomeFailed},
		{name: "exempted failure", failed: true, allowFailure: true, want: OutcomeExempted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.failed, tc.allowFailure))
		})
	}
}

func TestOutcomeFatal(t *testing.T) {
	t.Parallel()

	require.True(t, OutcomeFailed.Fatal())
	require.False(t, OutcomePassed.Fatal())
	require.False(t, OutcomeExempted.Fatal())
}
