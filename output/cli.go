package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Abhaythakor/fingerprintweb/aggregate"
	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

// CLIWriter prints one compact line per URL, e.g. "https://example.com [Apache 2.4, PHP]".
type CLIWriter struct{ *textWriter }

// NewCLIWriter creates a new CLIWriter. Color is applied only when colorize is set.
func NewCLIWriter(out io.WriteCloser, colorize bool) *CLIWriter {
	c := &util.Colorizer{Enabled: colorize}
	return &CLIWriter{&textWriter{
		out:  out,
		mode: model.ModeAll,
		renderResult: func(r model.Result) string {
			return cliResult(c, r)
		},
		renderDomain: func(s aggregate.DomainSummary) string {
			return cliDomain(c, s)
		},
	}}
}

func cliResult(c *util.Colorizer, r model.Result) string {
	if r.Failed() {
		return fmt.Sprintf("%s %s\n", c.Cyan(target(r)), c.Red("["+r.ErrorType+": "+r.Error+"]"))
	}
	techs := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		if m.Implied {
			techs = append(techs, c.Dim(label(m)))
			continue
		}
		techs = append(techs, c.Green(label(m)))
	}
	return fmt.Sprintf("%s [%s]\n", c.Cyan(target(r)), strings.Join(techs, ", "))
}

func cliDomain(c *util.Colorizer, s aggregate.DomainSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nDomain: %s\n", c.Cyan(s.Domain))
	fmt.Fprintf(&b, "  URLs Scanned: %d\n", len(s.URLs))
	for i, u := range s.URLs {
		if i == maxListedURLs {
			fmt.Fprintf(&b, "    - (and %d more URLs...)\n", len(s.URLs)-maxListedURLs)
			break
		}
		fmt.Fprintf(&b, "    - %s\n", u)
	}
	b.WriteString("  Technologies:\n")
	for _, m := range s.Technologies {
		fmt.Fprintf(&b, "    - %s\n", c.Green(label(m)))
	}
	return b.String()
}
