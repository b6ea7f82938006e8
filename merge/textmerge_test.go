package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeTextNonOverlappingChangesMergeClean(t *testing.T) {
	base := []string{"alpha", "beta", "gamma"}
	ours := []string{"ALPHA", "beta", "gamma"}
	theirs := []string{"alpha", "beta", "GAMMA"}

	regions := MergeText(base, ours, theirs)
	assert.False(t, HasConflict(regions))
	assert.Equal(t, []string{"ALPHA", "beta", "GAMMA"}, Render(regions))
}

func TestMergeTextOverlappingDifferentChangesConflict(t *testing.T) {
	base := []string{"one", "two", "three"}
	ours := []string{"one", "OURS", "three"}
	theirs := []string{"one", "THEIRS", "three"}

	regions := MergeText(base, ours, theirs)
	a := assert.New(t)
	a.True(HasConflict(regions))

	rendered := Render(regions)
	joined := joinLines(rendered)
	a.Contains(joined, "<<<<<<< ours\n")
	a.Contains(joined, "OURS\n")
	a.Contains(joined, "=======\n")
	a.Contains(joined, "THEIRS\n")
	a.Contains(joined, ">>>>>>> theirs\n")
}

func TestMergeTextIdenticalChangeOnBothSidesIsClean(t *testing.T) {
	base := []string{"one", "two", "three"}
	ours := []string{"one", "CHANGED", "three"}
	theirs := []string{"one", "CHANGED", "three"}

	regions := MergeText(base, ours, theirs)
	assert.False(t, HasConflict(regions))
	assert.Equal(t, []string{"one", "CHANGED", "three"}, Render(regions))
}

func TestMergeTextOnlyOneSideChangedTakesThatSide(t *testing.T) {
	base := []string{"one", "two", "three"}
	ours := []string{"one", "two", "three"}
	theirs := []string{"one", "TWO", "three"}

	regions := MergeText(base, ours, theirs)
	assert.False(t, HasConflict(regions))
	assert.Equal(t, []string{"one", "TWO", "three"}, Render(regions))
}

func TestMergeTextInsertionsAtSamePositionConflict(t *testing.T) {
	base := []string{"one", "two"}
	ours := []string{"one", "OURS-INSERT", "two"}
	theirs := []string{"one", "THEIRS-INSERT", "two"}

	regions := MergeText(base, ours, theirs)
	assert.True(t, HasConflict(regions))
}

func TestMergeTextEmptyBaseBothSidesAppendDifferently(t *testing.T) {
	base := []string{}
	ours := []string{"ours line"}
	theirs := []string{"theirs line"}

	regions := MergeText(base, ours, theirs)
	assert.True(t, HasConflict(regions))
}

func TestHunksOverlapAdjacentNonTouchingRangesDoNotOverlap(t *testing.T) {
	a := hunk{baseStart: 0, baseEnd: 2}
	b := hunk{baseStart: 2, baseEnd: 4}
	assert.False(t, hunksOverlap(a, b))
}

func TestHunksOverlapOverlappingRangesOverlap(t *testing.T) {
	a := hunk{baseStart: 0, baseEnd: 3}
	b := hunk{baseStart: 2, baseEnd: 4}
	assert.True(t, hunksOverlap(a, b))
}
