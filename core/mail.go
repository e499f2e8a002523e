package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

type tmplEntry struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

// TemplateRenderer renders EmailMessage templates found in a filesystem.
// Templates named `_base.txt` and `_base.gohtml` are parsed along every template of the same extension.
type TemplateRenderer struct {
	fsys            fs.FS
	frontendBaseURL string
	strict          bool

	once      sync.Once
	templates map[string]*tmplEntry
	parseErr  error
}

func NewTemplateRenderer(fsys fs.FS, frontendBaseURL string, strict bool) *TemplateRenderer {
	return &TemplateRenderer{fsys: fsys, frontendBaseURL: frontendBaseURL, strict: strict}
}

// Render fills msg.TextContent and msg.HTMLContent.
func (r *TemplateRenderer) Render(msg *EmailMessage) error {
	if msg.BodyStr != "" {
		msg.TextContent = msg.BodyStr
	}
	if msg.TemplateName == "" {
		return nil
	}

	r.once.Do(r.parse) // only parse once, during first render
	if r.parseErr != nil {
		return r.parseErr
	}
	entry, ok := r.templates[msg.TemplateName]
	if !ok {
		return errors.Errorf("unknown email template %q", msg.TemplateName)
	}

	data := ContextData{FrontendBaseURL: r.frontendBaseURL, Data: msg.TemplateData}
	var buff bytes.Buffer
	if entry.text != nil && msg.BodyStr == "" {
		if err := entry.text.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering text template")
		}
		msg.TextContent = buff.String()
		buff.Reset()
	}
	if entry.html != nil {
		if err := entry.html.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering html template")
		}
		msg.HTMLContent = buff.String()
	}
	return nil
}

func (r *TemplateRenderer) parse() {
	r.templates = make(map[string]*tmplEntry)

	names, err := fs.Glob(r.fsys, "*")
	if err != nil {
		r.parseErr = errors.Wrap(err, "listing email templates")
		return
	}

	for _, fname := range names {
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := r.templates[name]
		if !ok {
			entry = new(tmplEntry)
			r.templates[name] = entry
		}

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(r.fsys, "_base.txt", fname)
			if err != nil {
				r.parseErr = errors.Wrapf(err, "parsing %s", fname)
				return
			}
			if r.strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.text = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(r.fsys, "_base.gohtml", fname)
			if err != nil {
				r.parseErr = errors.Wrapf(err, "parsing %s", fname)
				return
			}
			if r.strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.html = tmpl
		}
	}
}
