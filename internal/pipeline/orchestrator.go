// Package pipeline contains the trigger detector and the analysis
// orchestrator: gather a conversation's staged documents, run them through
// the understanding service, publish the summary as a document, clean up,
// and report the outcome in the conversation.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/docbrief/docbrief/internal/storage"
)

const (
	titleMaxRunes      = 50
	summaryUnavailable = "Summary unavailable."

	msgBusy       = "An analysis is already running for this chat. Please wait for it to finish."
	msgInProgress = "Analyzing the staged documents, this may take a moment..."
	msgEmptyInput = "No staged documents to process. Upload the files first, then trigger the analysis again."
)

// TokenSource acquires platform credentials for one run.
type TokenSource interface {
	TenantToken(ctx context.Context) (string, error)
}

// Messenger sends replies into the conversation.
type Messenger interface {
	Reply(ctx context.Context, messageID, text string) error
}

// DocumentService creates the output document and fills its content.
type DocumentService interface {
	CreateDocument(ctx context.Context, title string) (string, error)
	AppendText(ctx context.Context, documentID, text string) error
	DocumentURL(documentID string) string
}

// Summarizer is the document-understanding service.
type Summarizer interface {
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
	Summarize(ctx context.Context, fileIDs []string, multi bool) (string, error)
}

// Orchestrator drives one conversation's staged files through the analysis
// pipeline. Run never surfaces an error to its caller; every outcome is
// reported via chat reply (or, before credentials exist, the log).
type Orchestrator struct {
	logger     *slog.Logger
	tokens     TokenSource
	messenger  Messenger
	docs       DocumentService
	store      storage.Provider
	summarizer Summarizer
	prefix     string
	extension  string
	locks      *conversationLocks
}

// NewOrchestrator wires the pipeline over its external collaborators.
func NewOrchestrator(log *slog.Logger, tokens TokenSource, messenger Messenger, docs DocumentService, store storage.Provider, summarizer Summarizer, prefix, extension string) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	extension = strings.ToLower(strings.TrimSpace(extension))
	if extension == "" {
		extension = ".pdf"
	}
	return &Orchestrator{
		logger:     log.With(slog.String("component", "pipeline")),
		tokens:     tokens,
		messenger:  messenger,
		docs:       docs,
		store:      store,
		summarizer: summarizer,
		prefix:     strings.Trim(prefix, "/"),
		extension:  extension,
		locks:      newConversationLocks(),
	}
}

// Run executes the pipeline for one conversation. replyMessageID is the
// trigger message all outcome replies target. Stages run strictly in order;
// a stage failure short-circuits to failure reporting. Staged files are
// only deleted after the output document exists, so a failed run can be
// re-triggered without re-uploading.
func (o *Orchestrator) Run(ctx context.Context, conversationID, replyMessageID string) {
	log := o.logger.With(slog.String("conversation_id", conversationID))

	if !o.locks.tryAcquire(conversationID) {
		log.Info("run rejected, conversation busy")
		o.reply(ctx, replyMessageID, msgBusy)
		return
	}
	defer o.locks.release(conversationID)

	if _, err := o.tokens.TenantToken(ctx); err != nil {
		// No usable credentials also means no reply channel.
		log.Error("acquire platform credentials failed", slog.Any("error", err))
		return
	}

	o.reply(ctx, replyMessageID, msgInProgress)

	files, err := o.gatherFiles(ctx, conversationID)
	if err != nil {
		o.replyFailure(ctx, replyMessageID, fmt.Sprintf("list staged files: %v", err))
		return
	}
	if len(files) == 0 {
		log.Info("no staged files at trigger time")
		o.reply(ctx, replyMessageID, msgEmptyInput)
		return
	}

	fileIDs := make([]string, 0, len(files))
	for _, file := range files {
		data, err := o.readFile(ctx, file.Key)
		if err != nil {
			o.replyFailure(ctx, replyMessageID, fmt.Sprintf("read %s: %v", file.OriginalName, err))
			return
		}
		fileID, err := o.summarizer.UploadFile(ctx, file.OriginalName, data)
		if err != nil {
			o.replyFailure(ctx, replyMessageID, fmt.Sprintf("upload %s: %v", file.OriginalName, err))
			return
		}
		fileIDs = append(fileIDs, fileID)
	}

	summary, err := o.summarizer.Summarize(ctx, fileIDs, len(files) > 1)
	if err != nil {
		o.replyFailure(ctx, replyMessageID, fmt.Sprintf("summarize: %v", err))
		return
	}
	if strings.TrimSpace(summary) == "" {
		log.Warn("summarization returned no text, using placeholder")
		summary = summaryUnavailable
	}

	docID, err := o.docs.CreateDocument(ctx, documentTitle(files))
	if err != nil {
		o.replyFailure(ctx, replyMessageID, fmt.Sprintf("create document: %v", err))
		return
	}
	if err := o.docs.AppendText(ctx, docID, summary); err != nil {
		// Best effort: the user still gets the document link.
		log.Warn("write summary to document failed", slog.String("document_id", docID), slog.Any("error", err))
	}

	for _, file := range files {
		if err := o.store.Delete(ctx, file.Key); err != nil {
			log.Warn("delete staged file failed", slog.String("key", file.Key), slog.Any("error", err))
		}
	}

	log.Info("run completed",
		slog.Int("files", len(files)),
		slog.String("document_id", docID),
	)
	o.reply(ctx, replyMessageID, fmt.Sprintf("Summary of %d document(s) is ready: %s", len(files), o.docs.DocumentURL(docID)))
}

// gatherFiles lists the conversation's staged files, keeps only expected
// documents, and sorts oldest-first so multi-file reports read in upload
// order.
func (o *Orchestrator) gatherFiles(ctx context.Context, conversationID string) ([]storage.StagedFile, error) {
	keys, err := o.store.List(ctx, storage.ConversationPrefix(o.prefix, conversationID))
	if err != nil {
		return nil, err
	}
	files := make([]storage.StagedFile, 0, len(keys))
	for _, key := range keys {
		file, ok := storage.ParseKey(key)
		if !ok {
			o.logger.Warn("skipping unparseable storage key", slog.String("key", key))
			continue
		}
		if !strings.HasSuffix(strings.ToLower(file.OriginalName), o.extension) {
			continue
		}
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].Key < files[j].Key
		}
		return files[i].UploadedAt.Before(files[j].UploadedAt)
	})
	return files, nil
}

func (o *Orchestrator) readFile(ctx context.Context, key string) ([]byte, error) {
	reader, err := o.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (o *Orchestrator) reply(ctx context.Context, messageID, text string) {
	if err := o.messenger.Reply(ctx, messageID, text); err != nil {
		o.logger.Error("send pipeline reply failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) replyFailure(ctx context.Context, messageID, cause string) {
	o.logger.Error("run failed", slog.String("cause", cause))
	o.reply(ctx, messageID, "Analysis failed: "+cause)
}

// documentTitle joins the original file names, capped at 50 runes.
func documentTitle(files []storage.StagedFile) string {
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file.OriginalName)
	}
	title := strings.Join(names, ", ")
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes])
	}
	return title
}
