// Package storage abstracts the object store that holds staged documents
// between upload and analysis.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// Provider abstracts object storage operations.
type Provider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// StagedFile is one uploaded document awaiting analysis. It is fully
// recoverable from its storage key; there is no separate index.
type StagedFile struct {
	ConversationID string
	Key            string
	OriginalName   string
	UploadedAt     time.Time
}

// BuildKey builds a staged-file storage key:
// {prefix}/{conversationID}/{unixMillis}_{originalName}.
// The timestamp component makes keys unique per upload and gives listings a
// natural ascending sort key.
func BuildKey(prefix, conversationID string, uploadedAt time.Time, originalName string) string {
	name := fmt.Sprintf("%d_%s", uploadedAt.UnixMilli(), originalName)
	return path.Join(prefix, conversationID, name)
}

// ConversationPrefix returns the listing prefix that yields exactly one
// conversation's staged files.
func ConversationPrefix(prefix, conversationID string) string {
	return path.Join(prefix, conversationID) + "/"
}

// ParseKey recovers a StagedFile from its storage key. Keys that do not
// follow the staged-file layout report ok=false; callers skip them rather
// than failing a listing.
func ParseKey(key string) (StagedFile, bool) {
	trimmed := strings.Trim(key, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 {
		return StagedFile{}, false
	}
	conversationID := parts[len(parts)-2]
	base := parts[len(parts)-1]
	millisRaw, name, found := strings.Cut(base, "_")
	if !found || conversationID == "" || name == "" {
		return StagedFile{}, false
	}
	millis, err := strconv.ParseInt(millisRaw, 10, 64)
	if err != nil {
		return StagedFile{}, false
	}
	return StagedFile{
		ConversationID: conversationID,
		Key:            key,
		OriginalName:   name,
		UploadedAt:     time.UnixMilli(millis).UTC(),
	}, true
}
