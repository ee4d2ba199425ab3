package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// LocalVideoID derives the stable video_id for a local file: a
// 32-hex-character prefix of SHA-256(basename + "-" + size + "-" +
// floor(mtime_ms)).
func LocalVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	mtimeMS := info.ModTime().UnixMilli()
	seed := fmt.Sprintf("%s-%d-%d", filepath.Base(path), info.Size(), mtimeMS)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:32], nil
}
