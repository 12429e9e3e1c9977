package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewArtifactID generates a unique artifact ID with the "post_" prefix
func NewArtifactID() string {
	return "post_" + uuid.New().String()
}

// NewAssetID generates a unique generated-asset ID with the "img_" prefix
func NewAssetID() string {
	return "img_" + uuid.New().String()
}

// SubmissionFingerprint derives a stable fingerprint for duplicate detection
// from the owner identity and the payload identity (content plus every
// generation option).
func SubmissionFingerprint(owner, content, model string, targetLength int, generateImage, generateMetadata bool) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%d|%t|%t", owner, content, model, targetLength, generateImage, generateMetadata))
	return hex.EncodeToString(sum[:])
}
