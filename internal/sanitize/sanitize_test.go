package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLStripsScript(t *testing.T) {
	s := New()

	out := s.HTML(`<p>hello</p><script>alert("xss")</script>`)
	assert.Contains(t, out, "<p>hello</p>")
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "alert")
}

func TestHTMLStripsEventHandlers(t *testing.T) {
	s := New()

	out := s.HTML(`<img src="https://example.com/a.png" onerror="alert(1)">`)
	assert.NotContains(t, out, "onerror")
	assert.Contains(t, out, "example.com/a.png")
}

func TestHTMLStripsJavascriptURL(t *testing.T) {
	s := New()

	out := s.HTML(`<a href="javascript:alert(1)">click</a>`)
	assert.NotContains(t, out, "javascript:")
}

func TestHTMLKeepsMailMarkup(t *testing.T) {
	s := New()

	in := `<table width="600"><tr><td align="center"><font color="red">Hi</font></td></tr></table>`
	out := s.HTML(in)
	assert.Contains(t, out, "<table")
	assert.Contains(t, out, `align="center"`)
	assert.Contains(t, out, "<font")
}

func TestHTMLEmpty(t *testing.T) {
	s := New()
	assert.Equal(t, "", s.HTML(""))
}
