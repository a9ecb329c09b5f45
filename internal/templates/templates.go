// Package templates renders the email and SMS bodies sent by the email and
// sms queues. Templates are embedded in the binary.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed email/*.html sms/*.txt
var files embed.FS

// Data is the union of fields the templates reference.
type Data struct {
	AppName  string
	BaseURL  string
	UserName string

	EventTitle  string
	EventURL    string
	Venue       string
	EventStart  time.Time
	HoursBefore int

	CertificateNumber string
	CertificateURL    string
	ResetURL          string

	Subject    string
	Paragraphs []string
}

// Email is a rendered email.
type Email struct {
	Subject string
	HTML    string
}

var funcs = map[string]any{
	"formatTime": func(t time.Time) string { return t.UTC().Format("Mon, 02 Jan 2006 15:04 MST") },
}

type Renderer struct {
	email map[string]*htmltemplate.Template
	sms   map[string]*texttemplate.Template
}

// New parses every embedded template.
func New() (*Renderer, error) {
	r := &Renderer{
		email: make(map[string]*htmltemplate.Template),
		sms:   make(map[string]*texttemplate.Template),
	}

	emails, err := fs.Glob(files, "email/*.html")
	if err != nil {
		return nil, err
	}
	for _, f := range emails {
		t, err := htmltemplate.New(path.Base(f)).Funcs(funcs).ParseFS(files, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		r.email[strings.TrimSuffix(path.Base(f), ".html")] = t
	}

	texts, err := fs.Glob(files, "sms/*.txt")
	if err != nil {
		return nil, err
	}
	for _, f := range texts {
		t, err := texttemplate.New(path.Base(f)).Funcs(funcs).ParseFS(files, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		r.sms[strings.TrimSuffix(path.Base(f), ".txt")] = t
	}
	return r, nil
}

// Email renders the named email template.
func (r *Renderer) Email(name string, d Data) (Email, error) {
	t, ok := r.email[name]
	if !ok {
		return Email{}, fmt.Errorf("unknown email template %q", name)
	}
	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", d); err != nil {
		return Email{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.ExecuteTemplate(&body, "body", d); err != nil {
		return Email{}, fmt.Errorf("render %s body: %w", name, err)
	}
	return Email{
		// Subjects are plain text; undo the escaping of the HTML template set.
		Subject: html.UnescapeString(strings.TrimSpace(subject.String())),
		HTML:    strings.TrimSpace(body.String()),
	}, nil
}

// SMS renders the named SMS template.
func (r *Renderer) SMS(name string, d Data) (string, error) {
	t, ok := r.sms[name]
	if !ok {
		return "", fmt.Errorf("unknown sms template %q", name)
	}
	var b bytes.Buffer
	if err := t.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render %s sms: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
