package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/appraise-cli/internal/model"
)

func sampleSubject() model.ProvenanceSubject {
	return model.ProvenanceSubject{
		Events: []model.ProvenanceEvent{
			{ID: "e1", Date: "1995-04-01", Type: model.EventAcquisition, Description: "Bought at auction", Verified: true},
			{ID: "e2", Date: "2005-09-12", Type: model.EventRestoration, Description: "Refinished neck", Provider: "Luthier & Co"},
			{ID: "e3", Date: "2007-01-20", Type: model.EventAppraisal, Description: "Insurance appraisal", DocumentRef: "docs/appraisal.pdf"},
		},
	}
}

func TestFingerprint_EmptyTimeline(t *testing.T) {
	t.Parallel()

	root, err := Fingerprint(nil)
	require.NoError(t, err)
	assert.Empty(t, root)
}

func TestFingerprint_StableAndHex(t *testing.T) {
	t.Parallel()

	analysis := Analyze(sampleSubject())
	require.True(t, analysis.GapDetected)

	root, err := Fingerprint(analysis.Timeline)
	require.NoError(t, err)
	assert.Len(t, root, 64)

	again, err := Fingerprint(Analyze(sampleSubject()).Timeline)
	require.NoError(t, err)
	assert.Equal(t, root, again)
}

func TestFingerprint_IgnoresGapsAndOrder(t *testing.T) {
	t.Parallel()

	timeline := Analyze(sampleSubject()).Timeline
	root, err := Fingerprint(timeline)
	require.NoError(t, err)

	var withoutGaps []model.TimelineItem
	for i := len(timeline) - 1; i >= 0; i-- {
		if !timeline[i].Gap {
			withoutGaps = append(withoutGaps, timeline[i])
		}
	}
	other, err := Fingerprint(withoutGaps)
	require.NoError(t, err)
	assert.Equal(t, root, other)
}

func TestVerifyFingerprint_DetectsTampering(t *testing.T) {
	t.Parallel()

	timeline := Analyze(sampleSubject()).Timeline
	root, err := Fingerprint(timeline)
	require.NoError(t, err)

	ok, err := VerifyFingerprint(timeline, root)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := make([]model.TimelineItem, len(timeline))
	copy(tampered, timeline)
	for i := range tampered {
		if tampered[i].EventID == "e3" {
			tampered[i].Verified = true
		}
	}
	ok, err = VerifyFingerprint(tampered, root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildTree_OddLeafCount(t *testing.T) {
	t.Parallel()

	tree, err := BuildTree(Analyze(sampleSubject()).Timeline)
	require.NoError(t, err)

	require.Len(t, tree.Leaves, 3)
	// 3 leaves -> 2 nodes -> root
	require.Len(t, tree.Levels, 2)
	assert.Len(t, tree.Levels[0], 2)
	assert.Equal(t, nodeHash(tree.Leaves[2], tree.Leaves[2]), tree.Levels[0][1])
	assert.Equal(t, tree.Root, tree.Levels[1][0])
}

func TestBuildTree_SingleLeafIsRoot(t *testing.T) {
	t.Parallel()

	tree, err := BuildTree(Analyze(model.ProvenanceSubject{PurchaseDate: "2020-01-01"}).Timeline)
	require.NoError(t, err)
	require.Len(t, tree.Leaves, 1)
	assert.Empty(t, tree.Levels)
	assert.Equal(t, tree.Leaves[0], tree.Root)
}
