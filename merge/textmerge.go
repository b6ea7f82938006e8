// Package merge implements three-way content and tree merging: diff3-style
// hunk interleaving for file content, and the per-path outcome table for
// merging two trees against their common ancestor.
package merge

import (
	"sort"

	"github.com/vcsforge/gitcore/history"
)

// RegionType classifies one contiguous span of a three-way content merge.
type RegionType int

const (
	RegionContext RegionType = iota
	RegionOurs
	RegionTheirs
	RegionConflict
)

// Region is one span of the merged content, anchored to base line ranges.
type Region struct {
	Type        RegionType
	BaseLines   []string
	OursLines   []string // set for RegionOurs/RegionConflict
	TheirsLines []string // set for RegionTheirs/RegionConflict
}

// hunk is a contiguous run of non-keep edits mapped back onto base line
// ranges, the unit mergeLines interleaves between the two sides.
type hunk struct {
	baseStart int
	baseEnd   int
	lines     []string
}

// editsToHunks groups a flat edit script into contiguous change hunks, each
// anchored at the base range it replaces. A hunk made only of inserts is
// anchored at the base position immediately following it.
func editsToHunks(edits []history.Edit, baseLines, newLines []string) []hunk {
	var hunks []hunk
	i := 0
	for i < len(edits) {
		if edits[i].Type == history.EditKeep {
			i++
			continue
		}
		h := hunk{baseStart: -1}
		for i < len(edits) && edits[i].Type != history.EditKeep {
			switch edits[i].Type {
			case history.EditDelete:
				if h.baseStart == -1 {
					h.baseStart = edits[i].OldLine
				}
				h.baseEnd = edits[i].OldLine + 1
			case history.EditInsert:
				if edits[i].NewLine < len(newLines) {
					h.lines = append(h.lines, newLines[edits[i].NewLine])
				}
			}
			i++
		}
		if h.baseStart == -1 {
			if i < len(edits) {
				h.baseStart = edits[i].OldLine
			} else {
				h.baseStart = len(baseLines)
			}
			h.baseEnd = h.baseStart
		}
		hunks = append(hunks, h)
	}
	return hunks
}

// hunksOverlap reports whether two base-anchored hunks overlap. Non-empty
// ranges that merely touch do not count; a zero-width insert inside or at
// the edge of the other's range does.
func hunksOverlap(a, b hunk) bool {
	if a.baseStart < b.baseEnd && b.baseStart < a.baseEnd {
		return true
	}
	if a.baseStart == a.baseEnd && a.baseStart >= b.baseStart && a.baseStart <= b.baseEnd {
		return true
	}
	if b.baseStart == b.baseEnd && b.baseStart >= a.baseStart && b.baseStart <= a.baseEnd {
		return true
	}
	return false
}

func hunkTouches(h hunk, end int) bool {
	return h.baseStart < end || (h.baseStart == h.baseEnd && h.baseStart <= end)
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func copyLines(lines []string, from, to int) []string {
	if from >= to || from >= len(lines) {
		return []string{}
	}
	if to > len(lines) {
		to = len(lines)
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

// MergeText performs a diff3-style three-way merge of text content: each
// side's edits against base are computed independently, then interleaved in
// base line order. Non-overlapping hunks from each side apply cleanly;
// overlapping hunks become a single conflict region spanning their union,
// unless both sides produced byte-identical replacement text.
func MergeText(baseLines, oursLines, theirsLines []string) []Region {
	oursHunks := editsToHunks(history.ComputeEdits(baseLines, oursLines), baseLines, oursLines)
	theirsHunks := editsToHunks(history.ComputeEdits(baseLines, theirsLines), baseLines, theirsLines)

	sort.Slice(oursHunks, func(i, j int) bool { return oursHunks[i].baseStart < oursHunks[j].baseStart })
	sort.Slice(theirsHunks, func(i, j int) bool { return theirsHunks[i].baseStart < theirsHunks[j].baseStart })

	var regions []Region
	oi, it := 0, 0
	pos := 0

	appendContext := func(from, to int) {
		if from < to {
			regions = append(regions, Region{Type: RegionContext, BaseLines: copyLines(baseLines, from, to)})
		}
	}

	for oi < len(oursHunks) || it < len(theirsHunks) {
		var no, nt *hunk
		if oi < len(oursHunks) {
			no = &oursHunks[oi]
		}
		if it < len(theirsHunks) {
			nt = &theirsHunks[it]
		}

		switch {
		case no != nil && nt != nil && hunksOverlap(*no, *nt):
			start := no.baseStart
			if nt.baseStart < start {
				start = nt.baseStart
			}
			appendContext(pos, start)

			end := no.baseEnd
			if nt.baseEnd > end {
				end = nt.baseEnd
			}

			var oursText []string
			oursText = append(oursText, oursHunks[oi].lines...)
			oi++
			for oi < len(oursHunks) && hunkTouches(oursHunks[oi], end) {
				oursText = append(oursText, oursHunks[oi].lines...)
				if oursHunks[oi].baseEnd > end {
					end = oursHunks[oi].baseEnd
				}
				oi++
			}

			var theirsText []string
			theirsText = append(theirsText, theirsHunks[it].lines...)
			it++
			for it < len(theirsHunks) && hunkTouches(theirsHunks[it], end) {
				theirsText = append(theirsText, theirsHunks[it].lines...)
				if theirsHunks[it].baseEnd > end {
					end = theirsHunks[it].baseEnd
				}
				it++
			}

			if equalLines(oursText, theirsText) {
				regions = append(regions, Region{Type: RegionOurs, BaseLines: copyLines(baseLines, start, end), OursLines: oursText})
			} else {
				regions = append(regions, Region{
					Type:        RegionConflict,
					BaseLines:   copyLines(baseLines, start, end),
					OursLines:   oursText,
					TheirsLines: theirsText,
				})
			}
			pos = end

		case no != nil && (nt == nil || no.baseStart <= nt.baseStart):
			appendContext(pos, no.baseStart)
			regions = append(regions, Region{Type: RegionOurs, BaseLines: copyLines(baseLines, no.baseStart, no.baseEnd), OursLines: no.lines})
			pos = no.baseEnd
			oi++

		default:
			appendContext(pos, nt.baseStart)
			regions = append(regions, Region{Type: RegionTheirs, BaseLines: copyLines(baseLines, nt.baseStart, nt.baseEnd), TheirsLines: nt.lines})
			pos = nt.baseEnd
			it++
		}
	}

	appendContext(pos, len(baseLines))
	return regions
}

// HasConflict reports whether any region in a MergeText result is unresolved.
func HasConflict(regions []Region) bool {
	for _, r := range regions {
		if r.Type == RegionConflict {
			return true
		}
	}
	return false
}

// Render flattens merged regions into final text, writing conflict markers
// around unresolved regions exactly as Git does.
func Render(regions []Region) []string {
	var out []string
	for _, r := range regions {
		switch r.Type {
		case RegionContext:
			out = append(out, r.BaseLines...)
		case RegionOurs:
			out = append(out, r.OursLines...)
		case RegionTheirs:
			out = append(out, r.TheirsLines...)
		case RegionConflict:
			out = append(out, "<<<<<<< ours")
			out = append(out, r.OursLines...)
			out = append(out, "=======")
			out = append(out, r.TheirsLines...)
			out = append(out, ">>>>>>> theirs")
		}
	}
	return out
}
