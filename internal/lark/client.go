// Package lark drives the chat platform: tenant token acquisition, message
// replies, user-file downloads, and docx document creation.
package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

const (
	regionFeishu = "feishu"
	regionLark   = "lark"

	tenantTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
)

type messageAPI interface {
	Reply(ctx context.Context, req *larkim.ReplyMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error)
}

type messageResourceAPI interface {
	Get(ctx context.Context, req *larkim.GetMessageResourceReq, options ...larkcore.RequestOptionFunc) (*larkim.GetMessageResourceResp, error)
}

type rawAPI interface {
	Post(ctx context.Context, apiPath string, body interface{}, accessTokenType larkcore.AccessTokenType, options ...larkcore.RequestOptionFunc) (*larkcore.ApiResp, error)
}

// Client wraps the official SDK client with the narrow capability surface
// the pipeline needs.
type Client struct {
	logger     *slog.Logger
	appID      string
	appSecret  string
	docBaseURL string

	messages  messageAPI
	resources messageResourceAPI
	raw       rawAPI
}

// New creates a platform client for a self-built app. Missing app
// credentials are a deployment misconfiguration and fail construction.
func New(log *slog.Logger, appID, appSecret, region string) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	appID = strings.TrimSpace(appID)
	appSecret = strings.TrimSpace(appSecret)
	if appID == "" || appSecret == "" {
		return nil, fmt.Errorf("lark app_id and app_secret are required")
	}
	baseURL, docBaseURL, err := resolveRegion(region)
	if err != nil {
		return nil, err
	}
	api := lark.NewClient(appID, appSecret, lark.WithOpenBaseUrl(baseURL))
	return &Client{
		logger:     log.With(slog.String("adapter", "lark")),
		appID:      appID,
		appSecret:  appSecret,
		docBaseURL: docBaseURL,
		messages:   api.Im.V1.Message,
		resources:  api.Im.V1.MessageResource,
		raw:        api,
	}, nil
}

func resolveRegion(raw string) (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", regionFeishu, "cn", "china":
		return lark.FeishuBaseUrl, "https://feishu.cn/docx/", nil
	case regionLark, "global", "intl", "international":
		return lark.LarkBaseUrl, "https://larksuite.com/docx/", nil
	default:
		return "", "", fmt.Errorf("lark region must be feishu or lark")
	}
}

type tenantTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
}

// TenantToken fetches a fresh tenant access token. Tokens are short-lived
// and fetched per pipeline run; there is no caching here.
func (c *Client) TenantToken(ctx context.Context) (string, error) {
	body := map[string]string{"app_id": c.appID, "app_secret": c.appSecret}
	resp, err := c.raw.Post(ctx, tenantTokenPath, body, larkcore.AccessTokenTypeNone)
	if err != nil {
		return "", fmt.Errorf("lark tenant token: %w", err)
	}
	return parseTenantToken(resp.RawBody)
}

func parseTenantToken(raw []byte) (string, error) {
	var parsed tenantTokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("lark tenant token: parse response: %w", err)
	}
	if parsed.Code != 0 {
		return "", fmt.Errorf("lark tenant token failed: %s (code: %d)", parsed.Msg, parsed.Code)
	}
	token := strings.TrimSpace(parsed.TenantAccessToken)
	if token == "" {
		return "", fmt.Errorf("lark tenant token failed: empty token")
	}
	return token, nil
}

// Reply sends a plain-text reply to the given message.
func (c *Client) Reply(ctx context.Context, messageID, text string) error {
	msgID := strings.TrimSpace(messageID)
	if msgID == "" {
		return fmt.Errorf("lark reply message id is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("lark reply text is required")
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal text content: %w", err)
	}
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(msgID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			Content(string(payload)).
			MsgType(larkim.MsgTypeText).
			Uuid(uuid.NewString()).
			Build()).
		Build()
	resp, err := c.messages.Reply(ctx, req)
	if err != nil {
		c.logger.Error("reply failed", slog.String("message_id", msgID), slog.Any("error", err))
		return err
	}
	if resp == nil || !resp.Success() {
		code := 0
		msg := ""
		if resp != nil {
			code = resp.Code
			msg = resp.Msg
		}
		c.logger.Error("reply failed", slog.String("message_id", msgID), slog.Int("code", code), slog.String("msg", msg))
		return fmt.Errorf("lark reply failed: %s (code: %d)", msg, code)
	}
	return nil
}

// DownloadFile fetches the bytes of a user-uploaded file. Resources are
// keyed by both the carrying message id and the file key.
func (c *Client) DownloadFile(ctx context.Context, messageID, fileKey string) ([]byte, error) {
	msgID := strings.TrimSpace(messageID)
	key := strings.TrimSpace(fileKey)
	if msgID == "" || key == "" {
		return nil, fmt.Errorf("lark file download requires message_id and file_key")
	}
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(msgID).
		FileKey(key).
		Type("file").
		Build()
	resp, err := c.resources.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("download lark resource: %w", err)
	}
	if resp == nil || !resp.Success() {
		code := 0
		msg := ""
		if resp != nil {
			code = resp.Code
			msg = resp.Msg
		}
		return nil, fmt.Errorf("download lark resource: %s (code: %d)", msg, code)
	}
	if resp.File == nil {
		return nil, fmt.Errorf("download lark resource: empty payload")
	}
	data, err := io.ReadAll(resp.File)
	if err != nil {
		return nil, fmt.Errorf("download lark resource: read payload: %w", err)
	}
	return data, nil
}
