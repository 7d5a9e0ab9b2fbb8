package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// Docx block type for a plain text paragraph.
const textBlockType = 2

type createDocumentResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Document struct {
			DocumentID string `json:"document_id"`
		} `json:"document"`
	} `json:"data"`
}

type genericResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// CreateDocument creates an empty docx document and returns its id.
func (c *Client) CreateDocument(ctx context.Context, title string) (string, error) {
	body := map[string]any{"title": strings.TrimSpace(title)}
	resp, err := c.raw.Post(ctx, "/open-apis/docx/v1/documents", body, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return "", fmt.Errorf("lark create document: %w", err)
	}
	var parsed createDocumentResponse
	if err := json.Unmarshal(resp.RawBody, &parsed); err != nil {
		return "", fmt.Errorf("lark create document: parse response: %w", err)
	}
	if parsed.Code != 0 {
		return "", fmt.Errorf("lark create document failed: %s (code: %d)", parsed.Msg, parsed.Code)
	}
	docID := strings.TrimSpace(parsed.Data.Document.DocumentID)
	if docID == "" {
		return "", fmt.Errorf("lark create document failed: empty document id")
	}
	return docID, nil
}

// AppendText inserts one text block at the end of the document. The root
// block id of a docx document equals the document id; index -1 appends.
func (c *Client) AppendText(ctx context.Context, documentID, text string) error {
	docID := strings.TrimSpace(documentID)
	if docID == "" {
		return fmt.Errorf("lark append text: document id is required")
	}
	body := map[string]any{
		"index": -1,
		"children": []map[string]any{
			{
				"block_type": textBlockType,
				"text": map[string]any{
					"elements": []map[string]any{
						{"text_run": map[string]any{"content": text}},
					},
				},
			},
		},
	}
	path := fmt.Sprintf("/open-apis/docx/v1/documents/%s/blocks/%s/children", docID, docID)
	resp, err := c.raw.Post(ctx, path, body, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return fmt.Errorf("lark append text: %w", err)
	}
	var parsed genericResponse
	if err := json.Unmarshal(resp.RawBody, &parsed); err != nil {
		return fmt.Errorf("lark append text: parse response: %w", err)
	}
	if parsed.Code != 0 {
		return fmt.Errorf("lark append text failed: %s (code: %d)", parsed.Msg, parsed.Code)
	}
	return nil
}

// DocumentURL builds the shareable link for a document id.
func (c *Client) DocumentURL(documentID string) string {
	return c.docBaseURL + strings.TrimSpace(documentID)
}
