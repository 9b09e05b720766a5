package outline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/geocine/notexport/internal/export"
)

func TestFragmentBelowThreshold(t *testing.T) {
	g := New()
	assert.Empty(t, g.Fragment(nil))
	assert.Empty(t, g.Fragment([]export.Heading{{Level: 1, Text: "Only", ID: "Only_0"}}))
}

func TestFragmentNesting(t *testing.T) {
	g := New()
	out := g.Fragment([]export.Heading{
		{Level: 1, Text: "Intro", ID: "Intro_0"},
		{Level: 2, Text: "Setup", ID: "Setup_0"},
		{Level: 2, Text: "Usage", ID: "Usage_0"},
		{Level: 1, Text: "Appendix", ID: "Appendix_0"},
	})

	assert.Contains(t, out, `<a href="#Intro_0">Intro</a>`)
	assert.Contains(t, out, `<ol class="outline-section">`)
	// The nested section closes before the trailing h1.
	assert.Contains(t, out, `</ol></li><li class="outline-item"><a href="#Appendix_0">Appendix</a>`)
}

func TestFragmentEscapesText(t *testing.T) {
	g := New()
	out := g.Fragment([]export.Heading{
		{Level: 1, Text: "A < B", ID: "A_<_B_0"},
		{Level: 1, Text: "C", ID: "C_0"},
	})
	assert.Contains(t, out, "A &lt; B")
}
