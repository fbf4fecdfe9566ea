// File: cmd/run_test.go
package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, 0, exitCodeFor(nil))
	assert.Equal(t, exitInterrupted, exitCodeFor(errInterrupted))
	// A wrapped interrupt still maps to the interrupt code.
	assert.Equal(t, exitInterrupted, exitCodeFor(fmt.Errorf("episode: %w", errInterrupted)))
	assert.Equal(t, 1, exitCodeFor(errors.New("device check failed")))
}

func TestMergeInstructions_DefaultsSurvive(t *testing.T) {
	merged := mergeInstructions(defaultInstructions, nil)
	assert.Equal(t, defaultInstructions, merged)
}

func TestMergeInstructions_ExtraAppended(t *testing.T) {
	merged := mergeInstructions(defaultInstructions, []string{"Always use the search bar."})
	assert.Len(t, merged, len(defaultInstructions)+1)
	assert.Equal(t, "Always use the search bar.", merged[len(merged)-1])
}

func TestMergeInstructions_SubsumedDefaultDropped(t *testing.T) {
	defaults := []string{"never open the camera"}
	extra := []string{"Never open the camera unless the goal says so."}

	merged := mergeInstructions(defaults, extra)

	assert.Len(t, merged, 1)
	assert.Equal(t, extra[0], merged[0])
}

func TestMergeInstructions_Dedupe(t *testing.T) {
	extra := []string{"Use dark mode.", "use dark mode.", "  ", "Use dark mode."}
	merged := mergeInstructions(nil, extra)
	assert.Equal(t, []string{"Use dark mode."}, merged)
}
