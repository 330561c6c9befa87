package core

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

//go:embed templates/email/*
var emailTemplatesFS embed.FS

var (
	templates   tmplCache
	templatesMu sync.RWMutex

	errTemplateNotFound = errors.New("email template not found")
	errTemplateEmpty    = errors.New("email template has no text nor html content")
)

type (
	tmplCacheEntry struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
	tmplCache map[string]*tmplCacheEntry // {name: entry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) Render(ctxData ContextData) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	templatesMu.RLock()
	entry, ok := templates[m.TemplateName]
	templatesMu.RUnlock()
	if !ok {
		return errors.Wrap(errTemplateNotFound, m.TemplateName)
	}
	if entry.text == nil && entry.html == nil {
		return errors.Wrap(errTemplateEmpty, m.TemplateName)
	}

	ctxData.Data = m.TemplateData
	if entry.text != nil && m.TextContent == "" {
		var buff bytes.Buffer
		if err := entry.text.Execute(&buff, ctxData); err != nil {
			return errors.Wrap(err, "rendering text template")
		}
		m.TextContent = buff.String()
	}
	if entry.html != nil {
		var buff bytes.Buffer
		if err := entry.html.Execute(&buff, ctxData); err != nil {
			return errors.Wrap(err, "rendering html template")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates parses the embedded `templates/email` files.
// files starting with "_" are base layouts, every other `.txt` | `.gohtml` file is a named template.
func ParseEmailTemplates(logger Logger) {
	root := "templates/email"
	cache := make(tmplCache)

	entries, err := fs.ReadDir(emailTemplatesFS, root)
	if err != nil {
		logger.Error(fmt.Sprintf("reading email templates: %v", err), err)
		return
	}

	for _, e := range entries {
		fname := e.Name()
		ext := path.Ext(fname)
		if e.IsDir() || strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := cache[name]
		if !ok {
			entry = new(tmplCacheEntry)
			cache[name] = entry
		}

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(emailTemplatesFS, path.Join(root, "_base.txt"), path.Join(root, fname))
			if err != nil {
				logger.Error(fmt.Sprintf("parsing email template %s: %v", fname, err), err)
				continue
			}
			entry.text = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(emailTemplatesFS, path.Join(root, "_base.gohtml"), path.Join(root, fname))
			if err != nil {
				logger.Error(fmt.Sprintf("parsing email template %s: %v", fname, err), err)
				continue
			}
			entry.html = tmpl.Option("missingkey=error")
		}
	}

	templatesMu.Lock()
	templates = cache
	templatesMu.Unlock()
}
