package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrief/docbrief/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	listErr error
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Put(_ context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) List(_ context.Context, prefix string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) TenantToken(context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "t-token", nil
}

type fakeMessenger struct {
	replies []string
}

func (f *fakeMessenger) Reply(_ context.Context, _ string, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeMessenger) last() string {
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type fakeDocs struct {
	createErr error
	appendErr error
	titles    []string
	appended  []string
}

func (f *fakeDocs) CreateDocument(_ context.Context, title string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.titles = append(f.titles, title)
	return "doc_1", nil
}

func (f *fakeDocs) AppendText(_ context.Context, _, text string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, text)
	return nil
}

func (f *fakeDocs) DocumentURL(documentID string) string {
	return "https://feishu.cn/docx/" + documentID
}

type fakeSummarizer struct {
	failUpload     string
	summarizeErr   error
	summary        string
	uploadedNames  []string
	summarizedIDs  []string
	summarizeCalls int
	gotMulti       bool
}

func (f *fakeSummarizer) UploadFile(_ context.Context, name string, _ []byte) (string, error) {
	if name == f.failUpload {
		return "", fmt.Errorf("upstream rejected %s", name)
	}
	f.uploadedNames = append(f.uploadedNames, name)
	return "fid-" + name, nil
}

func (f *fakeSummarizer) Summarize(_ context.Context, fileIDs []string, multi bool) (string, error) {
	f.summarizeCalls++
	f.summarizedIDs = append([]string{}, fileIDs...)
	f.gotMulti = multi
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summary, nil
}

type fixture struct {
	store      *fakeStore
	tokens     *fakeTokens
	messenger  *fakeMessenger
	docs       *fakeDocs
	summarizer *fakeSummarizer
	orch       *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		store:      newFakeStore(),
		tokens:     &fakeTokens{},
		messenger:  &fakeMessenger{},
		docs:       &fakeDocs{},
		summarizer: &fakeSummarizer{summary: "the summary"},
	}
	f.orch = NewOrchestrator(nil, f.tokens, f.messenger, f.docs, f.store, f.summarizer, "staged", ".pdf")
	return f
}

func (f *fixture) stage(t *testing.T, conversationID, name string, millis int64) string {
	t.Helper()
	key := storage.BuildKey("staged", conversationID, time.UnixMilli(millis).UTC(), name)
	require.NoError(t, f.store.Put(context.Background(), key, bytes.NewReader([]byte("content of "+name))))
	return key
}

func TestRunProcessesFilesInUploadOrderAndCleansUp(t *testing.T) {
	f := newFixture()
	keyA := f.stage(t, "oc_1", "a.pdf", 100)
	keyB := f.stage(t, "oc_1", "b.pdf", 200)

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, f.summarizer.uploadedNames)
	assert.Equal(t, []string{"fid-a.pdf", "fid-b.pdf"}, f.summarizer.summarizedIDs)
	assert.True(t, f.summarizer.gotMulti)
	assert.Equal(t, []string{"a.pdf, b.pdf"}, f.docs.titles)
	assert.Equal(t, []string{"the summary"}, f.docs.appended)
	assert.ElementsMatch(t, []string{keyA, keyB}, f.store.deleted)
	assert.Empty(t, f.store.objects)
	assert.Contains(t, f.messenger.last(), "2 document(s)")
	assert.Contains(t, f.messenger.last(), "https://feishu.cn/docx/doc_1")
}

func TestRunSingleFileRequestsSingleDocumentSummary(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.False(t, f.summarizer.gotMulti)
	assert.Equal(t, []string{"fid-a.pdf"}, f.summarizer.summarizedIDs)
}

func TestRunEmptyInputShortCircuits(t *testing.T) {
	f := newFixture()

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Equal(t, 0, f.summarizer.summarizeCalls)
	assert.Empty(t, f.summarizer.uploadedNames)
	assert.Empty(t, f.docs.titles)
	assert.Empty(t, f.store.deleted)
	assert.Equal(t, msgEmptyInput, f.messenger.last())
	// One in-progress notice plus exactly one empty-input reply.
	assert.Len(t, f.messenger.replies, 2)
}

func TestRunUploadFailureAbortsBeforeSummarizeAndKeepsFiles(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	f.stage(t, "oc_1", "b.pdf", 200)
	f.summarizer.failUpload = "b.pdf"

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Equal(t, 0, f.summarizer.summarizeCalls)
	assert.Empty(t, f.docs.titles)
	assert.Empty(t, f.store.deleted)
	assert.Len(t, f.store.objects, 2)
	assert.Contains(t, f.messenger.last(), "Analysis failed")
	assert.Contains(t, f.messenger.last(), "b.pdf")
}

func TestRunSummarizeFailureAbortsBeforeDocumentCreation(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	f.summarizer.summarizeErr = errors.New("model overloaded")

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Empty(t, f.docs.titles)
	assert.Empty(t, f.store.deleted)
	assert.Len(t, f.store.objects, 1)
	assert.Contains(t, f.messenger.last(), "model overloaded")
}

func TestRunDocumentWriteFailureStillSucceedsWithLink(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	f.docs.appendErr = errors.New("block quota exceeded")

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Empty(t, f.store.objects)
	assert.Contains(t, f.messenger.last(), "https://feishu.cn/docx/doc_1")
	assert.NotContains(t, f.messenger.last(), "Analysis failed")
}

func TestRunEmptySummaryUsesPlaceholder(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	f.summarizer.summary = "   "

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Equal(t, []string{summaryUnavailable}, f.docs.appended)
	assert.Contains(t, f.messenger.last(), "https://feishu.cn/docx/doc_1")
}

func TestRunCredentialFailureIsSilent(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	f.tokens.err = errors.New("app not installed")

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Empty(t, f.messenger.replies)
	assert.Len(t, f.store.objects, 1)
}

func TestRunRejectsOverlappingRunForSameConversation(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	require.True(t, f.orch.locks.tryAcquire("oc_1"))
	defer f.orch.locks.release("oc_1")

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Equal(t, []string{msgBusy}, f.messenger.replies)
	assert.Len(t, f.store.objects, 1)
}

func TestRunIgnoresForeignAndNonDocumentKeys(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	f.stage(t, "oc_1", "notes.txt", 150)
	require.NoError(t, f.store.Put(context.Background(), "staged/oc_1/stray-object", bytes.NewReader([]byte("x"))))

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Equal(t, []string{"a.pdf"}, f.summarizer.uploadedNames)
	// Only the processed document is cleaned up.
	assert.Len(t, f.store.deleted, 1)
}

func TestRunRunsNeverMixConversations(t *testing.T) {
	f := newFixture()
	f.stage(t, "oc_1", "a.pdf", 100)
	f.stage(t, "oc_2", "other.pdf", 100)

	f.orch.Run(context.Background(), "oc_1", "om_trigger")

	assert.Equal(t, []string{"a.pdf"}, f.summarizer.uploadedNames)
	assert.Len(t, f.store.objects, 1)
}

func TestDocumentTitleCappedAtFiftyRunes(t *testing.T) {
	files := []storage.StagedFile{
		{OriginalName: strings.Repeat("a", 40) + ".pdf"},
		{OriginalName: strings.Repeat("b", 40) + ".pdf"},
	}
	title := documentTitle(files)
	assert.Len(t, []rune(title), 50)
	assert.True(t, strings.HasPrefix(title, strings.Repeat("a", 40)+".pdf, "))
}
