package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/aggregate"
	"github.com/Abhaythakor/fingerprintweb/model"
)

// MDWriter implements the Writer interface for Markdown output.
type MDWriter struct{ *textWriter }

// NewMDWriter creates a new MDWriter.
func NewMDWriter(out io.WriteCloser) *MDWriter {
	return &MDWriter{&textWriter{
		out:          out,
		mode:         model.ModeAll,
		header:       "# Technology Report\n\n",
		renderResult: mdResult,
		renderDomain: mdDomain,
	}}
}

// mdEscape keeps cell text from breaking the table.
func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func mdTable(b *strings.Builder, matches []model.Match) {
	b.WriteString("| Technology | Version | Category | Origin |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, m := range matches {
		origin := string(m.Origin)
		if m.Implied {
			origin += " (implied)"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", mdEscape(m.Name), mdEscape(m.Version), mdEscape(m.Category), origin)
	}
	b.WriteString("\n")
}

func mdResult(r model.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## URL: `%s`\n", r.URL)
	if r.FinalURL != "" && r.FinalURL != r.URL {
		fmt.Fprintf(&b, "Redirected to `%s`\n", r.FinalURL)
	}
	if r.Domain != "" {
		fmt.Fprintf(&b, "### Domain: `%s`\n", r.Domain)
	}
	b.WriteString("\n")

	switch {
	case r.Failed():
		fmt.Fprintf(&b, "> **Error** (`%s`): %s\n\n", r.ErrorType, r.Error)
	case len(r.Matches) == 0:
		b.WriteString("_No technologies detected._\n\n")
	default:
		mdTable(&b, r.Matches)
	}
	return b.String()
}

func mdDomain(s aggregate.DomainSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Domain: `%s`\n\n", s.Domain)
	fmt.Fprintf(&b, "**URLs Scanned:** %d\n\n", len(s.URLs))
	for i, u := range s.URLs {
		if i == maxListedURLs {
			fmt.Fprintf(&b, "- (and %d more URLs...)\n", len(s.URLs)-maxListedURLs)
			break
		}
		fmt.Fprintf(&b, "- `%s`\n", u)
	}
	b.WriteString("\n")
	if len(s.Technologies) > 0 {
		mdTable(&b, s.Technologies)
	}
	return b.String()
}
