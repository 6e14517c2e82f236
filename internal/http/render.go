package http

import (
	"bytes"
	"context"
	"fmt"
	stdhttp "net/http"

	"github.com/a-h/templ"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiquiz/app/internal/http/templates"
)

type htmlResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// renderPage buffers the component so a render failure never leaves a partial page on the wire.
func renderPage(ctx context.Context, status int, component templ.Component) (*htmlResponse, error) {
	var buf bytes.Buffer
	if err := component.Render(ctx, &buf); err != nil {
		return nil, eris.Wrap(err, "rendering component")
	}

	return &htmlResponse{
		Status:      status,
		ContentType: htmlContentType,
		Body:        buf.Bytes(),
	}, nil
}

func (s *Server) renderErrorResponse(ctx context.Context, status int, message string) (*htmlResponse, error) {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))

	resp, err := renderPage(ctx, status, templates.ErrorPage(templates.ErrorPageData{
		StatusLabel: label,
		Message:     message,
	}))
	if err != nil {
		s.recordError(ctx, err, "rendering error page", logrus.Fields{"status": status})
		fallback := fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>",
			templ.EscapeString(label), templ.EscapeString(message))
		return &htmlResponse{Status: status, ContentType: htmlContentType, Body: []byte(fallback)}, nil
	}

	return resp, nil
}
