package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prompt-request/go-services/internal/apierror"
)

// MaxUploadBytes caps a single revision body.
const MaxUploadBytes = 1_048_576

// ContentKind is the closed set of accepted document formats.
type ContentKind int

const (
	Markdown ContentKind = iota
	NDJSON
)

// CanonicalType is the content type stored in metadata.
func (k ContentKind) CanonicalType() string {
	if k == NDJSON {
		return "application/x-ndjson"
	}
	return "text/markdown"
}

// ResponseType is the content type sent on public reads.
func (k ContentKind) ResponseType() string {
	if k == NDJSON {
		return "application/x-ndjson"
	}
	return "text/markdown; charset=utf-8"
}

func (k ContentKind) Extension() string {
	if k == NDJSON {
		return "jsonl"
	}
	return "md"
}

// ParseContentType maps a Content-Type header to a ContentKind. Parameters
// after ';' are ignored and matching is case-insensitive.
func ParseContentType(header string) (ContentKind, error) {
	if strings.TrimSpace(header) == "" {
		return 0, apierror.BadRequest("missing content-type")
	}
	base, _, _ := strings.Cut(header, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	switch base {
	case "text/markdown", "text/x-markdown":
		return Markdown, nil
	case "application/x-ndjson", "application/jsonl", "application/jsonlines":
		return NDJSON, nil
	}
	return 0, apierror.BadRequest(fmt.Sprintf("unsupported content-type: %s", base))
}

// KindOf maps a stored canonical type back to its kind.
func KindOf(canonical string) (ContentKind, bool) {
	switch canonical {
	case "text/markdown":
		return Markdown, true
	case "application/x-ndjson":
		return NDJSON, true
	}
	return 0, false
}

// ResponseTypeFor returns the public content type for a stored canonical type.
// Unknown stored types are passed through.
func ResponseTypeFor(canonical string) string {
	if k, ok := KindOf(canonical); ok {
		return k.ResponseType()
	}
	return canonical
}

// ObjectKey is the blob key of one revision.
func ObjectKey(id uuid.UUID, rev int, kind ContentKind) string {
	return fmt.Sprintf("requests/%s/rev-%d.%s", id, rev, kind.Extension())
}

// Checksum returns the lowercase hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Document is the per-request metadata row. LatestRev is the revision served
// by default; RevSeq is the highest revision number ever minted and only
// grows.
type Document struct {
	ID        uuid.UUID `json:"uuid"`
	AccountID int64     `json:"-"`
	LatestRev int       `json:"latest_rev"`
	RevSeq    int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Revision is one immutable upload.
type Revision struct {
	DocumentID  uuid.UUID `json:"-"`
	Rev         int       `json:"rev"`
	ContentType string    `json:"content_type"`
	SizeBytes   int       `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	ObjectKey   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is a list item for the owner's documents.
type Summary struct {
	ID                uuid.UUID `json:"uuid"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	LatestRev         int       `json:"latest_rev"`
	LatestContentType string    `json:"latest_content_type"`
}

// Created is returned by create and update.
type Created struct {
	ID          uuid.UUID `json:"uuid"`
	Rev         int       `json:"rev"`
	ContentType string    `json:"content_type"`
	SizeBytes   int       `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// Object locates the blob of a revision for public reads.
type Object struct {
	Key         string
	ContentType string
}
