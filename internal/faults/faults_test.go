package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	t.Parallel()

	kinds := []Kind{
		KindTimeout, KindElementMissing, KindStaleReference, KindNotInteractable,
		KindActionBlocked, KindAutomationFault, KindNetworkFailure,
		KindResourceExhaustion, KindFatal, KindUnknown, Kind("made-up"),
	}

	for _, kind := range kinds {
		err := New(kind, "boom")
		first := Classify(err)
		second := Classify(err)
		assert.Equal(t, first, second, "classification must be deterministic for %s", kind)
	}
}

func TestClassifySeverities(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		want Severity
	}{
		{KindTimeout, SeverityLow},
		{KindStaleReference, SeverityLow},
		{KindNotInteractable, SeverityLow},
		{KindActionBlocked, SeverityLow},
		{KindElementMissing, SeverityMedium},
		{KindAutomationFault, SeverityHigh},
		{KindNetworkFailure, SeverityHigh},
		{KindResourceExhaustion, SeverityCritical},
		{KindFatal, SeverityCritical},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(New(tc.kind, "x")), "kind %s", tc.kind)
	}
}

func TestClassifyUnknownDefaultsToMedium(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SeverityMedium, Classify(errors.New("plain error")))
	assert.Equal(t, SeverityMedium, Classify(New(Kind("never-mapped"), "x")))
}

func TestWrapPreservesExistingKind(t *testing.T) {
	t.Parallel()

	inner := New(KindTimeout, "read deadline")
	wrapped := Wrap(KindNetworkFailure, inner)
	assert.Equal(t, KindTimeout, KindOf(wrapped))
}

func TestWrapNilStaysNil(t *testing.T) {
	t.Parallel()

	require.NoError(t, Wrap(KindTimeout, nil))
}

func TestKindSurvivesFmtWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetching page: %w", New(KindActionBlocked, "HTTP 429"))
	assert.Equal(t, KindActionBlocked, KindOf(err))
	assert.Equal(t, SeverityLow, Classify(err))
}

func TestRetagReplacesKind(t *testing.T) {
	t.Parallel()

	err := New(KindResourceExhaustion, "out of handles")
	retagged := Retag(KindFatal, err)
	assert.Equal(t, KindFatal, KindOf(retagged))
	assert.ErrorContains(t, retagged, "out of handles")
}
