// Package mailrender builds the HTML and plain-text bodies of outgoing mail.
package mailrender

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type Kind string

const (
	KindAccessLink   Kind = "access_link"
	KindStatusChange Kind = "status_change"
	KindDispute      Kind = "dispute"
	KindResolution   Kind = "resolution"
	KindMessage      Kind = "message"
)

// Data is the union of fields any template may reference.
type Data struct {
	DealTitle  string
	DealURL    string
	Role       string
	Status     string
	ActorEmail string
	Reason     string
	Note       string
	Message    string
	ExpiresAt  time.Time
}

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type Renderer struct {
	subjects  map[Kind]*texttemplate.Template
	templates *template.Template
}

func NewRenderer() *Renderer {
	r := &Renderer{subjects: make(map[Kind]*texttemplate.Template)}
	for kind, subj := range subjects {
		r.subjects[kind] = texttemplate.Must(texttemplate.New(string(kind)).Parse(subj))
	}
	r.templates = template.Must(template.New("mail").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
	}).Parse(bodies))
	return r
}

func (r *Renderer) Render(kind Kind, data Data) (Rendered, error) {
	subj, ok := r.subjects[kind]
	if !ok {
		return Rendered{}, fmt.Errorf("mailrender: unknown kind %q", kind)
	}

	var sb strings.Builder
	if err := subj.Execute(&sb, data); err != nil {
		return Rendered{}, fmt.Errorf("mailrender: subject %s: %w", kind, err)
	}

	var hb bytes.Buffer
	if err := r.templates.ExecuteTemplate(&hb, string(kind), data); err != nil {
		return Rendered{}, fmt.Errorf("mailrender: body %s: %w", kind, err)
	}

	text, err := PlainText(hb.String())
	if err != nil {
		return Rendered{}, err
	}

	return Rendered{
		Subject: headerSafe(sb.String()),
		HTML:    hb.String(),
		Text:    text,
	}, nil
}

var spaceRe = regexp.MustCompile(`\s+`)

// headerSafe flattens a subject onto one line.
func headerSafe(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// PlainText turns a rendered HTML body into a text/plain alternative. Links are
// kept as "label (url)" so the access link survives in text-only clients.
func PlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("mailrender: parse html: %w", err)
	}

	doc.Find("head, script, style").Remove()
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		label := strings.TrimSpace(a.Text())
		if ok && href != "" && href != label {
			a.SetText(label + " (" + href + ")")
		}
	})

	var blocks []string
	doc.Find("h1, h2, h3, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(spaceRe.ReplaceAllString(s.Text(), " "))
		if t == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			t = "- " + t
		}
		blocks = append(blocks, t)
	})
	return strings.Join(blocks, "\n\n"), nil
}

var subjects = map[Kind]string{
	KindAccessLink:   `Your {{.Role}} link for "{{.DealTitle}}"`,
	KindStatusChange: `"{{.DealTitle}}" is now {{.Status}}`,
	KindDispute:      `Dispute filed on "{{.DealTitle}}"`,
	KindResolution:   `Dispute resolved on "{{.DealTitle}}"`,
	KindMessage:      `New message on "{{.DealTitle}}"`,
}

const bodies = `
{{define "layout_start"}}<html><head><title>{{.DealTitle}}</title></head><body>{{end}}
{{define "layout_end"}}<p><a href="{{.DealURL}}">Open the deal</a></p></body></html>{{end}}

{{define "access_link"}}<html><head><title>{{.DealTitle}}</title></head><body>
<h1>{{.DealTitle}}</h1>
<p>This is your private {{.Role}} link. Anyone holding it can act as the {{.Role}} on this deal, so do not forward it.</p>
<p><a href="{{.DealURL}}">Open the deal as {{.Role}}</a></p>
<p>The link expires on {{date .ExpiresAt}}. You can request a new one from the deal page with your email address.</p>
</body></html>{{end}}

{{define "status_change"}}{{template "layout_start" .}}
<h1>{{.DealTitle}}</h1>
<p>{{.ActorEmail}} moved the deal to <strong>{{.Status}}</strong>.</p>
{{template "layout_end" .}}{{end}}

{{define "dispute"}}{{template "layout_start" .}}
<h1>{{.DealTitle}}</h1>
<p>{{.ActorEmail}} filed a dispute.</p>
<blockquote>{{.Reason}}</blockquote>
{{template "layout_end" .}}{{end}}

{{define "resolution"}}{{template "layout_start" .}}
<h1>{{.DealTitle}}</h1>
<p>The dispute was resolved.</p>
<blockquote>{{.Note}}</blockquote>
{{template "layout_end" .}}{{end}}

{{define "message"}}{{template "layout_start" .}}
<h1>{{.DealTitle}}</h1>
<p>{{.ActorEmail}} wrote:</p>
<blockquote>{{.Message}}</blockquote>
{{template "layout_end" .}}{{end}}
`
