// Package mailer renders and delivers transactional email. Delivery is
// best-effort and asynchronous: the auth flows enqueue a message and move
// on; a failed send is logged, never surfaced to the end user.
package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Message is one outbound email. Template names a file under templates/;
// Context supplies its variables.
type Message struct {
	Recipients []string
	Subject    string
	Template   string
	Context    map[string]string
}

// Sender performs the actual delivery of a rendered message.
type Sender interface {
	Send(msg Message) error
}

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

func renderBody(msg Message) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, msg.Template, msg.Context); err != nil {
		return "", fmt.Errorf("failed to render mail template %q: %w", msg.Template, err)
	}
	return buf.String(), nil
}
