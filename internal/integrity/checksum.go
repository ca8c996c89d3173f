// Package integrity computes and compares digests and inspects detached
// OpenPGP signatures for downloaded metadata.
package integrity

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
)

// ErrChecksumNotFound means a checksum listing has no entry for the file.
var ErrChecksumNotFound = errors.New("checksum not found")

var sha256Hex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// IsSHA256Hex reports whether s looks like a hex-encoded SHA-256 digest.
func IsSHA256Hex(s string) bool {
	return sha256Hex.MatchString(s)
}

// SHA256Bytes returns the hex SHA-256 of b.
func SHA256Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256File calculates the SHA256 checksum of a file
func SHA256File(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FindChecksum finds the checksum for filename in a sha256sum-style listing.
// Format: "abc123def456  filename.tar.gz" (a leading '*' marks binary mode).
// A listing with a single bare digest applies to any filename.
func FindChecksum(r io.Reader, filename string) (string, error) {
	scanner := bufio.NewScanner(r)
	var bare []string
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		switch len(parts) {
		case 0:
			continue
		case 1:
			if IsSHA256Hex(parts[0]) {
				bare = append(bare, parts[0])
			}
			continue
		}

		// Use exact match first, then basename comparison for files with paths
		checksumFilename := strings.TrimPrefix(parts[1], "*")
		if checksumFilename == filename || path.Base(checksumFilename) == filename {
			return parts[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum listing: %w", err)
	}
	if len(bare) == 1 {
		return bare[0], nil
	}

	return "", fmt.Errorf("%w for %s", ErrChecksumNotFound, filename)
}

// MatchSHA256 compares a computed digest with an expected one, ignoring case.
func MatchSHA256(actual, expected string) error {
	if !IsSHA256Hex(expected) {
		return fmt.Errorf("expected checksum %q is not a SHA-256 digest", expected)
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch: actual %s, expected %s", actual, expected)
	}
	return nil
}
