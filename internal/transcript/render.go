package transcript

import (
	"fmt"
	"strings"
	"time"
)

const maxMessageRunes = 800

// Describe renders a classified payload as a single line of text.
func (c Content) Describe() string {
	switch c.Kind {
	case ContentAudio:
		if c.Transcription != "" {
			return fmt.Sprintf("[ÁUDIO TRANSCRITO]: %q", c.Transcription)
		}
		return "[ÁUDIO - sem transcrição]"
	case ContentImage:
		return "[IMAGEM ENVIADA]"
	case ContentVideo:
		return "[VÍDEO ENVIADO]"
	case ContentDocument:
		return fmt.Sprintf("[DOCUMENTO ENVIADO: %s]", c.FileName)
	default:
		return c.Text
	}
}

// Line is one rendered transcript entry.
type Line struct {
	SentAt  time.Time
	Sender  Sender
	Content Content
}

// String formats the line as "[HH:MM] Sender: text".
func (l Line) String() string {
	stamp := "--:--"
	if !l.SentAt.IsZero() {
		stamp = l.SentAt.Format("15:04")
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, l.Sender.Label(), truncate(l.Content.Describe(), maxMessageRunes))
}

// Classify builds the transcript line for a message.
func Classify(msg Message) Line {
	return Line{SentAt: msg.SentAt, Sender: ClassifySender(msg), Content: ClassifyContent(msg)}
}

// Render produces the plain text transcript for messages in the given order.
func Render(messages []Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(Classify(msg).String())
	}
	return b.String()
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
