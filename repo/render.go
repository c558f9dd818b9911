package repo

import (
	"bytes"
	"fmt"
	"html"
	"sort"
)

// Renderer produces a page's rendered form from its source, plus the
// site-wide stylesheet. Real templating is the caller's concern; the
// orchestrator only needs the two pure functions.
type Renderer interface {
	// RenderPage renders page source bytes against the current settings.
	RenderPage(source []byte, settings map[string]interface{}) ([]byte, error)

	// Stylesheet generates the site stylesheet from the current settings.
	Stylesheet(settings map[string]interface{}) ([]byte, error)
}

// PlainRenderer is the default Renderer:
// it wraps page source in a minimal HTML shell and emits a stylesheet from
// the settings' "theme" section.
type PlainRenderer struct{}

var _ Renderer = PlainRenderer{}

// RenderPage implements Renderer.
func (PlainRenderer) RenderPage(source []byte, settings map[string]interface{}) ([]byte, error) {
	title, _ := GetKey(settings, "name")
	titleStr, _ := title.(string)

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "<!doctype html>\n<html><head><title>%s</title>", html.EscapeString(titleStr))
	buf.WriteString(`<link rel="stylesheet" href="/site.css"></head><body><pre>`)
	buf.WriteString(html.EscapeString(string(source)))
	buf.WriteString("</pre></body></html>\n")
	return buf.Bytes(), nil
}

// Stylesheet implements Renderer.
func (PlainRenderer) Stylesheet(settings map[string]interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString("body { margin: 2em auto; max-width: 40em; }\n")

	theme, _ := GetKey(settings, "theme")
	if m, ok := theme.(map[string]interface{}); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(buf, "/* theme.%s */\nbody { %s: %v; }\n", k, k, m[k])
		}
	}
	return buf.Bytes(), nil
}
