// Package template renders campaign subjects and bodies: it resolves a
// campaign's content (inline body or stored template), substitutes
// {{variable}} placeholders per recipient, and wraps the result in the
// standard HTML layout.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bpr-rehab/campaigner/internal/models"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrNoContent        = errors.New("campaign has neither body nor template")
)

// TemplateSource is the subset of the template repository the renderer needs.
type TemplateSource interface {
	GetBySlug(slug string) (*models.Template, error)
}

// varPattern matches {{variable_name}} placeholders
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Rendered is a fully substituted message for one recipient.
type Rendered struct {
	Subject string
	HTML    string
}

// Content is campaign-level message content resolved once per batch,
// before any per-recipient substitution.
type Content struct {
	Subject string
	Body    string
	vars    map[string]any
}

type Renderer struct {
	templates TemplateSource
}

func NewRenderer(templates TemplateSource) *Renderer {
	return &Renderer{templates: templates}
}

// ResolveContent picks the campaign's content: an inline body wins over
// a template slug, and campaign-level variables are parsed once here.
func (r *Renderer) ResolveContent(c *models.Campaign) (*Content, error) {
	content := &Content{Subject: c.Subject}

	switch {
	case strings.TrimSpace(c.Body) != "":
		content.Body = c.Body
	case c.TemplateSlug != "":
		tmpl, err := r.templates.GetBySlug(c.TemplateSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", c.TemplateSlug, err)
		}
		if tmpl == nil {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, c.TemplateSlug)
		}
		content.Body = tmpl.HTMLBody
		if content.Subject == "" {
			content.Subject = tmpl.Subject
		}
	default:
		return nil, ErrNoContent
	}

	if c.Variables != "" {
		if err := json.Unmarshal([]byte(c.Variables), &content.vars); err != nil {
			return nil, fmt.Errorf("invalid campaign variables: %w", err)
		}
	}
	return content, nil
}

// RenderFor substitutes per-recipient variables into the resolved
// content and wraps the body in the HTML layout. Recipient fields
// override campaign-level variables of the same name.
func (r *Renderer) RenderFor(content *Content, contact *models.Contact, preheader, unsubscribeURL string) *Rendered {
	data := make(map[string]any, len(content.vars)+5)
	for k, v := range content.vars {
		data[k] = v
	}
	data["email"] = contact.Email
	data["firstName"] = contact.FirstName
	data["lastName"] = contact.LastName
	data["recipientName"] = contact.DisplayName()
	data["unsubscribeUrl"] = unsubscribeURL

	return &Rendered{
		Subject: renderVars(content.Subject, data),
		HTML:    wrapLayout(renderVars(content.Body, data), renderVars(preheader, data), unsubscribeURL),
	}
}

// renderVars replaces {{variable}} placeholders with values
func renderVars(template string, data map[string]any) string {
	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimSpace(match[2 : len(match)-2])

		if val, ok := data[varName]; ok {
			return fmt.Sprintf("%v", val)
		}

		// Keep original if variable not found
		return match
	})
}
