package mailer

import (
	"bytes"
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
	auth "github.com/goliatone/go-auth-invite"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed templates/*.html
var templatesFS embed.FS

var _ auth.InviteRenderer = (*Templates)(nil)

// Templates renders mail bodies from the embedded django templates.
type Templates struct {
	engine        *django.Engine
	AppName       string
	InviteSubject string
	// Expires is shown in the invitation body when set, e.g. "7 days".
	Expires string
}

// NewTemplates loads the embedded templates.
func NewTemplates(appName string) (*Templates, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}
	return NewTemplatesFS(appName, sub)
}

// NewTemplatesFS loads templates from fsys, which must contain invite.html.
func NewTemplatesFS(appName string, fsys fs.FS) (*Templates, error) {
	engine := django.NewFileSystem(http.FS(fsys), ".html")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load mail templates")
	}

	if appName == "" {
		appName = "our service"
	}

	return &Templates{
		engine:        engine,
		AppName:       appName,
		InviteSubject: "You have been invited",
	}, nil
}

func (t *Templates) RenderInvite(_ context.Context, email, link string) (string, string, error) {
	var buf bytes.Buffer
	err := t.engine.Render(&buf, "invite", map[string]any{
		"email":    email,
		"link":     link,
		"app_name": t.AppName,
		"expires":  t.Expires,
	})
	if err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render invitation email")
	}
	return t.InviteSubject, buf.String(), nil
}
