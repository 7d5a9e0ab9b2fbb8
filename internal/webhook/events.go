package webhook

import "encoding/json"

// EventKind is the closed set of inbound event variants the ingress acts
// on. Anything unknown or malformed maps to EventIgnorable so upstream
// gets a generic success and never retries.
type EventKind int

const (
	EventIgnorable EventKind = iota
	EventChallenge
	EventFileReceived
	EventTextReceived
)

// Event is the transport-independent view of one webhook callback.
type Event struct {
	Kind      EventKind
	Token     string
	Challenge string

	ChatID    string
	MessageID string
	Text      string
	FileKey   string
	FileName  string
}

const messageReceiveEventType = "im.message.receive_v1"

type envelope struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	Challenge string `json:"challenge"`
	Schema    string `json:"schema"`
	Header    struct {
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event struct {
		Message struct {
			MessageID   string `json:"message_id"`
			ChatID      string `json:"chat_id"`
			MessageType string `json:"message_type"`
			Content     string `json:"content"`
		} `json:"message"`
	} `json:"event"`
}

// Classify parses a raw webhook payload into one of the event variants.
// It is a pure function; all side effects live in the handler.
func Classify(payload []byte) Event {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{Kind: EventIgnorable}
	}

	if env.Type == "url_verification" {
		return Event{
			Kind:      EventChallenge,
			Token:     env.Token,
			Challenge: env.Challenge,
		}
	}

	if env.Schema != "2.0" || env.Header.EventType != messageReceiveEventType {
		return Event{Kind: EventIgnorable, Token: env.Header.Token}
	}

	message := env.Event.Message
	if message.ChatID == "" || message.MessageID == "" {
		return Event{Kind: EventIgnorable, Token: env.Header.Token}
	}

	switch message.MessageType {
	case "text":
		var content struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(message.Content), &content); err != nil || content.Text == "" {
			return Event{Kind: EventIgnorable, Token: env.Header.Token}
		}
		return Event{
			Kind:      EventTextReceived,
			Token:     env.Header.Token,
			ChatID:    message.ChatID,
			MessageID: message.MessageID,
			Text:      content.Text,
		}
	case "file":
		var content struct {
			FileKey  string `json:"file_key"`
			FileName string `json:"file_name"`
		}
		if err := json.Unmarshal([]byte(message.Content), &content); err != nil || content.FileKey == "" {
			return Event{Kind: EventIgnorable, Token: env.Header.Token}
		}
		return Event{
			Kind:      EventFileReceived,
			Token:     env.Header.Token,
			ChatID:    message.ChatID,
			MessageID: message.MessageID,
			FileKey:   content.FileKey,
			FileName:  content.FileName,
		}
	default:
		return Event{Kind: EventIgnorable, Token: env.Header.Token}
	}
}
