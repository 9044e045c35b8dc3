package importer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Scope is the logical identity of an import source. It joins the
// content hash so that a legitimately reissued statement for a
// different range is not mistaken for a duplicate.
type Scope struct {
	AccountFullName string
	Start           *time.Time
	End             *time.Time
}

// Fingerprint derives the idempotency key for a batch: SHA-256 over
// the normalized content plus the logical scope. Renaming a file does
// not change its fingerprint; editing one byte of it does.
func Fingerprint(content []byte, scope Scope) string {
	h := sha256.New()
	h.Write(normalizeContent(content))
	h.Write([]byte{0})
	h.Write([]byte(scope.AccountFullName))
	h.Write([]byte{0})
	if scope.Start != nil {
		h.Write([]byte(scope.Start.Format("2006-01-02")))
	}
	h.Write([]byte{0})
	if scope.End != nil {
		h.Write([]byte(scope.End.Format("2006-01-02")))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeContent strips line-ending and trailing-whitespace noise so
// that byte-identical data fingerprints identically regardless of the
// platform that exported it.
func normalizeContent(content []byte) []byte {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	lines := bytes.Split(content, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimRight(line, " \t")
	}
	out := bytes.Join(lines, []byte("\n"))
	return bytes.TrimRight(out, "\n")
}
