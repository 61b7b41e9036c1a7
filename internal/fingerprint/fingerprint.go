// Package fingerprint computes the stable content hashes used for change
// detection, embedding cache keys and per-project index directories.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
)

// ProjectIDLength is the number of hex characters in a project fingerprint.
const ProjectIDLength = 16

// Bytes returns the hex sha256 digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// String returns the hex sha256 digest of s.
func String(s string) string {
	return Bytes([]byte(s))
}

// File streams the file at path through the hasher. The digest equals
// Bytes of the file's content.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Chunk returns the cache key for a chunk: its context and content joined
// by a blank line, which is also the exact text handed to the embedder.
func Chunk(context, content string) string {
	return String(EmbeddingText(context, content))
}

// EmbeddingText joins chunk context and content the way they are embedded.
func EmbeddingText(context, content string) string {
	if context == "" {
		return content
	}
	return context + "\n\n" + content
}

// Project returns the directory-safe fingerprint of an absolute project path.
func Project(absPath string) string {
	return String(filepath.Clean(absPath))[:ProjectIDLength]
}
