package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint derives the stable item id from the fields that identify an
// article, so refetching the same article yields the same id.
func Fingerprint(sourceName, link, title string) string {
	content := fmt.Sprintf("%s|%s|%s", sourceName, link, title)

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
