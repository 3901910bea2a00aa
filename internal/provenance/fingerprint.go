package provenance

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/rotisserie/eris"

	"github.com/sells-group/appraise-cli/internal/model"
)

const (
	leafPrefix = "appraise:provenance:leaf:v1"
	nodePrefix = "appraise:provenance:node:v1"
)

// leafRecord is the canonical content hashed for one timeline event.
type leafRecord struct {
	EventID     string `json:"event_id"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Verified    bool   `json:"verified"`
	Provider    string `json:"provider,omitempty"`
	DocumentRef string `json:"document_ref,omitempty"`
}

// Tree is a Merkle tree over the real events of a timeline, oldest first.
type Tree struct {
	Leaves []string   // leaf hashes, hex
	Levels [][]string // node hashes per level, leaves excluded, root last
	Root   string
}

// BuildTree hashes each non-gap timeline event into a leaf and folds the
// leaves pairwise into a root. An odd node at any level is paired with itself.
// An empty timeline yields an empty root.
func BuildTree(timeline []model.TimelineItem) (*Tree, error) {
	events := make([]model.TimelineItem, 0, len(timeline))
	for _, it := range timeline {
		if !it.Gap {
			events = append(events, it)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].EventID < events[j].EventID
	})

	tree := &Tree{}
	if len(events) == 0 {
		return tree, nil
	}

	for _, ev := range events {
		leaf, err := leafBytes(ev)
		if err != nil {
			return nil, err
		}
		tree.Leaves = append(tree.Leaves, sha256Hex(leaf))
	}

	level := tree.Leaves
	for len(level) > 1 {
		level = nextLevel(level)
		tree.Levels = append(tree.Levels, level)
	}
	tree.Root = level[0]
	return tree, nil
}

// Fingerprint returns the Merkle root of the timeline's real events.
func Fingerprint(timeline []model.TimelineItem) (string, error) {
	tree, err := BuildTree(timeline)
	if err != nil {
		return "", err
	}
	return tree.Root, nil
}

// VerifyFingerprint reports whether the timeline still hashes to want.
func VerifyFingerprint(timeline []model.TimelineItem, want string) (bool, error) {
	got, err := Fingerprint(timeline)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func leafBytes(ev model.TimelineItem) ([]byte, error) {
	raw, err := json.Marshal(leafRecord{
		EventID:     ev.EventID,
		Date:        ev.Date.UTC().Format(time.RFC3339),
		Type:        string(ev.Type),
		Description: ev.Description,
		Verified:    ev.Verified,
		Provider:    ev.Provider,
		DocumentRef: ev.DocumentRef,
	})
	if err != nil {
		return nil, eris.Wrap(err, "provenance: marshal leaf")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, eris.Wrap(err, "provenance: canonicalize leaf")
	}

	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.Write(canonical)
	return buf.Bytes(), nil
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		hashes = append(hashes[:len(hashes):len(hashes)], hashes[len(hashes)-1])
	}
	next := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
