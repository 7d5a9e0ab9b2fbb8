package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildKeyLayout(t *testing.T) {
	uploadedAt := time.UnixMilli(1700000000123).UTC()
	key := BuildKey("staged", "oc_chat_1", uploadedAt, "report.pdf")
	assert.Equal(t, "staged/oc_chat_1/1700000000123_report.pdf", key)
}

func TestConversationPrefixEndsWithSlash(t *testing.T) {
	prefix := ConversationPrefix("staged", "oc_chat_1")
	assert.Equal(t, "staged/oc_chat_1/", prefix)
}

func TestParseKeyRoundTrip(t *testing.T) {
	uploadedAt := time.UnixMilli(1700000000123).UTC()
	key := BuildKey("staged", "oc_chat_1", uploadedAt, "report.pdf")

	file, ok := ParseKey(key)
	assert.True(t, ok)
	assert.Equal(t, "oc_chat_1", file.ConversationID)
	assert.Equal(t, "report.pdf", file.OriginalName)
	assert.Equal(t, uploadedAt, file.UploadedAt)
	assert.Equal(t, key, file.Key)
}

func TestParseKeyKeepsUnderscoresInName(t *testing.T) {
	file, ok := ParseKey("staged/oc_1/100_q3_financial_report.pdf")
	assert.True(t, ok)
	assert.Equal(t, "q3_financial_report.pdf", file.OriginalName)
	assert.Equal(t, time.UnixMilli(100).UTC(), file.UploadedAt)
}

func TestParseKeyRejectsMalformedKeys(t *testing.T) {
	for _, key := range []string{
		"",
		"report.pdf",
		"staged/report.pdf",
		"staged/oc_1/no-timestamp.pdf",
		"staged/oc_1/abc_report.pdf",
		"staged/oc_1/100_",
	} {
		_, ok := ParseKey(key)
		assert.False(t, ok, "expected %q to be rejected", key)
	}
}
