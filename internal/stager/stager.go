// Package stager persists uploaded documents under a conversation-scoped
// storage key so a later trigger can process them as one batch.
package stager

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/docbrief/docbrief/internal/storage"
)

type replySender interface {
	Reply(ctx context.Context, messageID, text string) error
}

// Stager writes uploaded files into the object store and acknowledges each
// staging in the conversation.
type Stager struct {
	logger    *slog.Logger
	store     storage.Provider
	replies   replySender
	prefix    string
	extension string
	hint      string
	now       func() time.Time
}

// New creates a file stager. hint is the trigger phrase echoed in the
// staging acknowledgment so users know how to start the analysis.
func New(log *slog.Logger, store storage.Provider, replies replySender, prefix, extension, hint string) *Stager {
	if log == nil {
		log = slog.Default()
	}
	extension = strings.ToLower(strings.TrimSpace(extension))
	if extension == "" {
		extension = ".pdf"
	}
	return &Stager{
		logger:    log.With(slog.String("component", "stager")),
		store:     store,
		replies:   replies,
		prefix:    strings.Trim(prefix, "/"),
		extension: extension,
		hint:      strings.TrimSpace(hint),
		now:       time.Now,
	}
}

// SetClock overrides the upload timestamp source.
func (s *Stager) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Stage persists one uploaded file. Files without the expected extension
// are silently ignored; not every shared file is meant for analysis.
// Storage failures are terminal and user-visible: a failure notice is sent
// and no error is returned to the webhook path.
func (s *Stager) Stage(ctx context.Context, conversationID, messageID, fileName string, data []byte) error {
	name := strings.TrimSpace(fileName)
	if name == "" || !strings.HasSuffix(strings.ToLower(name), s.extension) {
		s.logger.Debug("ignoring non-document upload",
			slog.String("conversation_id", conversationID),
			slog.String("file_name", name),
		)
		return nil
	}
	// Uploaded names can carry directory components. Only the base name is
	// kept: the key must stay flat so the conversation prefix listing finds it.
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	key := storage.BuildKey(s.prefix, conversationID, s.now().UTC(), name)
	if err := s.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		s.logger.Error("stage file failed",
			slog.String("conversation_id", conversationID),
			slog.String("key", key),
			slog.Any("error", err),
		)
		s.reply(ctx, messageID, fmt.Sprintf("Failed to stage %s: %v", name, err))
		return nil
	}
	s.logger.Info("file staged",
		slog.String("conversation_id", conversationID),
		slog.String("key", key),
	)
	ack := fmt.Sprintf("Staged %s for analysis.", name)
	if s.hint != "" {
		ack = fmt.Sprintf("Staged %s for analysis. Send %q when all documents are uploaded.", name, s.hint)
	}
	s.reply(ctx, messageID, ack)
	return nil
}

func (s *Stager) reply(ctx context.Context, messageID, text string) {
	if err := s.replies.Reply(ctx, messageID, text); err != nil {
		s.logger.Error("send staging reply failed", slog.Any("error", err))
	}
}
