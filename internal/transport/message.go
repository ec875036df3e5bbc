package transport

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// buildMessage assembles the RFC 5322 wire form of a message.
func buildMessage(msg *Message, hostname string, now time.Time) []byte {
	var b strings.Builder

	writeHeader(&b, "From", formatAddress(msg.FromName, msg.FromEmail))
	writeHeader(&b, "To", formatAddress(msg.ToName, msg.To))
	if msg.ReplyTo != "" {
		writeHeader(&b, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&b, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&b, "Date", now.Format(time.RFC1123Z))
	writeHeader(&b, "Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), hostname))
	if msg.UnsubscribeURL != "" {
		writeHeader(&b, "List-Unsubscribe", "<"+msg.UnsubscribeURL+">")
		writeHeader(&b, "List-Unsubscribe-Post", "List-Unsubscribe=One-Click")
	}
	writeHeader(&b, "MIME-Version", "1.0")
	writeHeader(&b, "Content-Type", `text/html; charset="utf-8"`)
	b.WriteString("\r\n")

	// Normalize body line endings to CRLF.
	body := strings.ReplaceAll(msg.HTML, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")

	return []byte(b.String())
}

func writeHeader(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// formatAddress renders "Name <addr>" with the display name encoded
// when it needs it, or the bare address when no name is set.
func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	encoded := mime.QEncoding.Encode("utf-8", name)
	if encoded != name || strings.ContainsAny(name, `",<>`) {
		if encoded == name {
			encoded = fmt.Sprintf("%q", name)
		}
		return fmt.Sprintf("%s <%s>", encoded, addr)
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
