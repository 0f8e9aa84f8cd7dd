package importer

import (
	"crypto/sha256"
	"encoding/hex"

	"neurogallery/server/internal/interfaces"
)

// SHA256Hasher produces the hex digest used for registry lookups. Registries
// index model files by their SHA-256.
type SHA256Hasher struct{}

func (SHA256Hasher) Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var _ interfaces.Hasher = SHA256Hasher{}
