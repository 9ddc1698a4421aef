// Package render turns notification jobs into email subjects and HTML bodies.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/notification/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[domain.Kind]string{
	domain.KindWelcome:                  "Welcome to {{.AppName}}!",
	domain.KindSubscriptionConfirmation: "Your subscription is active - {{.AppName}}",
	domain.KindCancellation:             "Subscription canceled - {{.AppName}}",
	domain.KindPaymentFailed:            "Payment failed, action required - {{.AppName}}",
}

type Data struct {
	AppName     string
	FrontendURL string
	Args        map[string]any
}

type Message struct {
	Subject string
	HTML    string
}

type Renderer struct {
	appName     string
	frontendURL string
	bodies      *template.Template
	subjects    map[domain.Kind]*template.Template
}

func New(cfg config.Config) (*Renderer, error) {
	bodies, err := template.New("").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}

	parsed := make(map[domain.Kind]*template.Template, len(subjects))
	for kind, text := range subjects {
		if bodies.Lookup(string(kind)+".html") == nil {
			return nil, fmt.Errorf("missing body template for %s", kind)
		}
		t, err := template.New(string(kind)).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse subject for %s: %w", kind, err)
		}
		parsed[kind] = t
	}

	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = "subkit"
	}
	return &Renderer{
		appName:     appName,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		bodies:      bodies,
		subjects:    parsed,
	}, nil
}

func (r *Renderer) Render(kind domain.Kind, args map[string]any) (Message, error) {
	subject, ok := r.subjects[kind]
	if !ok {
		return Message{}, domain.ErrUnknownKind
	}
	if args == nil {
		args = map[string]any{}
	}
	data := Data{AppName: r.appName, FrontendURL: r.frontendURL, Args: args}

	var s bytes.Buffer
	if err := subject.Execute(&s, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	var body bytes.Buffer
	if err := r.bodies.ExecuteTemplate(&body, string(kind)+".html", data); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}
	return Message{Subject: s.String(), HTML: body.String()}, nil
}
