package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const stylesheet = `body{font-family:Georgia,serif;max-width:46rem;margin:2rem auto;padding:0 1rem;color:#202122}
h1{border-bottom:1px solid #a2a9b1;padding-bottom:.25rem}
.meta{color:#54595d;font-size:.9rem}
.question{border:1px solid #eaecf0;border-radius:4px;padding:1rem;margin:1rem 0}
.difficulty{text-transform:uppercase;font-size:.75rem;color:#72777d}
.answer{margin-top:.5rem}
footer{margin-top:3rem;color:#72777d;font-size:.85rem}`

// layout wraps body in the shared page chrome.
func layout(title, footer string, body templ.Component) templ.Component {
	if footer == "" {
		footer = DefaultFooterNote
	}

	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := io.WriteString(w, "<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>"+
			templ.EscapeString(title)+"</title><style>"+stylesheet+"</style></head><body>"); err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		_, err := io.WriteString(w, "<footer>"+templ.EscapeString(footer)+"</footer></body></html>")
		return err
	})
}

type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err != nil {
		return
	}
	_, hw.err = io.WriteString(hw.w, s)
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) element(tag, class, content string) {
	if class != "" {
		hw.raw("<" + tag + " class=\"" + templ.EscapeString(class) + "\">")
	} else {
		hw.raw("<" + tag + ">")
	}
	hw.text(content)
	hw.raw("</" + tag + ">")
}

func (hw *htmlWriter) list(items []string) {
	hw.raw("<ul>")
	for _, item := range items {
		hw.element("li", "", item)
	}
	hw.raw("</ul>")
}
