// Package imagehash fingerprints item photos by content.
package imagehash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/appraise-cli/internal/model"
)

// ByteSource returns the raw bytes behind an image URL.
type ByteSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Hasher computes SHA-256 digests of item images.
type Hasher struct {
	src ByteSource
	now func() time.Time
}

// New returns a Hasher reading images from src.
func New(src ByteSource) *Hasher {
	return &Hasher{src: src, now: time.Now}
}

// Hash fetches and digests one image. A fetch failure never errors: the
// result carries HashStatusUnknown and no digest.
func (h *Hasher) Hash(ctx context.Context, ref model.ImageRef) model.ImageHash {
	return h.Verify(ctx, ref, "")
}

// Verify hashes ref and compares the digest against expected. A mismatch is
// reported as HashStatusTampered with expected kept as Digest, so the
// reference survives being stored again. An empty expected digest only hashes.
func (h *Hasher) Verify(ctx context.Context, ref model.ImageRef, expected string) model.ImageHash {
	out := model.ImageHash{ImageID: ref.ID, Status: model.HashStatusUnknown, HashedAt: h.now().UTC()}

	data, err := h.src.Fetch(ctx, ref.URL)
	if err != nil {
		zap.L().Warn("imagehash: fetch failed",
			zap.String("image_id", ref.ID),
			zap.String("url", ref.URL),
			zap.Error(err),
		)
		return out
	}

	actual := Digest(data)
	out.Digest = actual
	out.Status = model.HashStatusVerified
	if expected != "" && expected != actual {
		zap.L().Warn("imagehash: digest mismatch",
			zap.String("image_id", ref.ID),
			zap.String("expected", expected),
			zap.String("actual", actual),
		)
		out.Digest = expected
		out.ObservedDigest = actual
		out.Status = model.HashStatusTampered
	}
	return out
}

// Digest is the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Previous indexes stored hashes by image ID, skipping entries without a digest.
func Previous(hashes []model.ImageHash) map[string]string {
	out := make(map[string]string, len(hashes))
	for _, h := range hashes {
		if h.Digest != "" {
			out[h.ImageID] = h.Digest
		}
	}
	return out
}
