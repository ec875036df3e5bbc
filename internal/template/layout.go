package template

import (
	"fmt"
	"html"
	"strings"
)

// wrapLayout puts a rendered campaign body into the standard mailing
// layout: a hidden preheader span for inbox preview text, the content
// block, and an unsubscribe footer.
func wrapLayout(body, preheader, unsubscribeURL string) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html><body style="margin:0;padding:0;background:#f4f4f4;">`)

	if preheader != "" {
		// Visually hidden span so inbox clients show it as preview text.
		fmt.Fprintf(&b,
			`<div style="display:none;font-size:1px;color:#ffffff;line-height:1px;max-height:0px;max-width:0px;opacity:0;overflow:hidden;">%s</div>`,
			html.EscapeString(preheader),
		)
	}

	b.WriteString(`<div style="max-width:600px;margin:0 auto;padding:24px;background:#ffffff;font-family:Arial,Helvetica,sans-serif;color:#333333;">`)
	b.WriteString(body)
	b.WriteString(`</div>`)

	if unsubscribeURL != "" {
		fmt.Fprintf(&b,
			`<div style="max-width:600px;margin:0 auto;padding:16px 24px;font-family:Arial,Helvetica,sans-serif;font-size:12px;color:#999999;text-align:center;">`+
				`<a href="%s" style="color:#999999;">Unsubscribe</a></div>`,
			unsubscribeURL,
		)
	}

	b.WriteString(`</body></html>`)
	return b.String()
}
