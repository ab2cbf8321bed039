package transcript

import (
	"encoding/json"
	"strings"
	"time"
)

// ContentKind identifies what a message carries.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentAudio    ContentKind = "audio"
	ContentImage    ContentKind = "image"
	ContentVideo    ContentKind = "video"
	ContentDocument ContentKind = "document"
	ContentUnknown  ContentKind = "unknown"
)

const (
	unsupportedText     = "[Conteúdo não suportado]"
	emptyText           = "(mensagem vazia)"
	defaultDocumentName = "Documento"
)

// Message is one chat message as stored by the messaging integration.
type Message struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	// FromMe is false for messages written by the customer.
	FromMe     bool   `json:"from_me"`
	SenderType string `json:"sender_type,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	AgentName  string `json:"agent_name,omitempty"`
	// Transcriptions holds joined transcription records, newest first.
	Transcriptions []string       `json:"transcriptions,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SentAt         time.Time      `json:"created_at"`
}

// Content is the classified payload of a message.
type Content struct {
	Kind          ContentKind
	Text          string
	URL           string
	ThumbURL      string
	FileName      string
	Transcription string
}

type attachment struct {
	FileType string `json:"file_type"`
	DataURL  string `json:"data_url"`
	ThumbURL string `json:"thumb_url"`
	FileName string `json:"file_name"`
}

type structuredContent struct {
	Attachments []attachment `json:"attachments"`
}

// ClassifyContent applies the content precedence: an explicit content type,
// then a structured record in the body, then plain text.
func ClassifyContent(msg Message) Content {
	content := msg.Content
	switch strings.ToLower(strings.TrimSpace(msg.ContentType)) {
	case "audio":
		att, _ := findAttachment(content, "audio")
		return Content{Kind: ContentAudio, URL: att.DataURL, Transcription: Transcription(msg)}
	case "image":
		att, _ := findAttachment(content, "image")
		return Content{Kind: ContentImage, URL: att.DataURL, ThumbURL: att.ThumbURL}
	case "video":
		att, _ := findAttachment(content, "video")
		return Content{Kind: ContentVideo, URL: att.DataURL}
	case "document", "file":
		return Content{Kind: ContentDocument, FileName: firstFileName(content)}
	}

	if looksStructured(content) {
		if parsed, ok := parseStructured(content); ok {
			for _, att := range parsed.Attachments {
				switch strings.ToLower(att.FileType) {
				case "audio":
					return Content{Kind: ContentAudio, URL: att.DataURL, Transcription: Transcription(msg)}
				case "image":
					return Content{Kind: ContentImage, URL: att.DataURL, ThumbURL: att.ThumbURL}
				case "video":
					return Content{Kind: ContentVideo, URL: att.DataURL}
				case "file", "document":
					name := strings.TrimSpace(att.FileName)
					if name == "" {
						name = defaultDocumentName
					}
					return Content{Kind: ContentDocument, FileName: name}
				}
			}
			return Content{Kind: ContentUnknown, Text: unsupportedText}
		}
	}

	_, text, _ := splitAgentPrefix(content)
	text = strings.TrimSpace(text)
	if looksStructured(text) {
		return Content{Kind: ContentUnknown, Text: unsupportedText}
	}
	if text == "" {
		text = emptyText
	}
	return Content{Kind: ContentText, Text: text}
}

// Transcription returns the audio transcription for a message: the first
// joined record, then metadata "transcricao", then metadata "transcription".
func Transcription(msg Message) string {
	if len(msg.Transcriptions) > 0 {
		if text := strings.TrimSpace(msg.Transcriptions[0]); text != "" {
			return text
		}
	}
	for _, key := range []string{"transcricao", "transcription"} {
		if value, ok := msg.Metadata[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func looksStructured(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// parseStructured reports ok for any valid JSON value; arrays and objects
// without attachments yield an empty record.
func parseStructured(content string) (structuredContent, bool) {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return structuredContent{}, false
	}
	var parsed structuredContent
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return structuredContent{}, true
	}
	return parsed, true
}

func findAttachment(content, fileType string) (attachment, bool) {
	parsed, ok := parseStructured(content)
	if !ok {
		return attachment{}, false
	}
	for _, att := range parsed.Attachments {
		if strings.EqualFold(att.FileType, fileType) {
			return att, true
		}
	}
	return attachment{}, false
}

func firstFileName(content string) string {
	if parsed, ok := parseStructured(content); ok && len(parsed.Attachments) > 0 {
		if name := strings.TrimSpace(parsed.Attachments[0].FileName); name != "" {
			return name
		}
	}
	return defaultDocumentName
}
