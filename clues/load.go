package clues

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Abhaythakor/fingerprintweb/model"
)

// Format is the syntax of a clue document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

//go:embed data/clues.json
var defaultClues []byte

// FormatFromPath picks the document format from the file extension. Unknown extensions are JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Default returns the rule set shipped with the binary.
func Default() (*RuleSet, error) {
	return Load(bytes.NewReader(defaultClues), FormatJSON)
}

// DefaultDocument returns the raw embedded clue document.
func DefaultDocument() []byte {
	return defaultClues
}

// LoadFile reads and validates a clue document from disk.
func LoadFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("failed to open clue file %s: %w", path, err)}
	}
	defer f.Close()
	return Load(f, FormatFromPath(path))
}

// Load decodes and validates a clue document. Every pattern is compiled here so that matching
// never has to deal with a malformed rule.
func Load(r io.Reader, format Format) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("failed to read clues: %w", err)}
	}

	var doc document
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		return nil, &LoadError{Err: fmt.Errorf("unsupported clue format %q", format)}
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, &LoadError{Err: fmt.Errorf("failed to decode clues: %w", err)}
	}
	if len(doc.Apps) == 0 {
		return nil, &LoadError{Err: errors.New("document declares no apps")}
	}

	list := make([]*Clue, 0, len(doc.Apps))
	seen := make(map[[2]string]struct{}, len(doc.Apps))
	for i, app := range doc.Apps {
		c, err := compileClue(i, app, doc.Categories)
		if err != nil {
			return nil, err
		}
		key := [2]string{c.Name, c.Category}
		if _, dup := seen[key]; dup {
			return nil, &LoadError{Clue: c.Name, Err: ErrDuplicateClue}
		}
		seen[key] = struct{}{}
		list = append(list, c)
	}
	return newRuleSet(list), nil
}

func compileClue(index int, app namedClue, categories categoryMap) (*Clue, error) {
	name := strings.TrimSpace(app.Name)
	if name == "" {
		return nil, &LoadError{Clue: app.Name, Err: ErrEmptyName}
	}
	body := app.Body
	c := &Clue{Name: name, Website: body.Website, Index: index}

	for _, cat := range body.Cats {
		cat = strings.TrimSpace(cat)
		if resolved, ok := categories[cat]; ok && resolved != "" {
			c.Categories = append(c.Categories, resolved)
			continue
		}
		if cat == "" || isNumeric(cat) {
			return nil, &LoadError{Clue: name, Field: "cats", Err: fmt.Errorf("unknown category %q", cat)}
		}
		c.Categories = append(c.Categories, cat)
	}
	if len(c.Categories) == 0 {
		return nil, &LoadError{Clue: name, Field: "cats", Err: ErrNoCategory}
	}
	c.Category = c.Categories[0]

	add := func(kind model.SignalKind, key string, raws []string) error {
		for _, raw := range raws {
			p, err := parsePattern(kind, key, raw)
			if err != nil {
				field := string(kind)
				if key != "" {
					field += "." + key
				}
				return &LoadError{Clue: name, Field: field, Err: err}
			}
			c.Patterns = append(c.Patterns, p)
		}
		return nil
	}
	addKeyed := func(kind model.SignalKind, m patternMap) error {
		for _, np := range m {
			if strings.TrimSpace(np.Name) == "" {
				return &LoadError{Clue: name, Field: string(kind), Err: errors.New("empty key")}
			}
			raws := np.Patterns
			if len(raws) == 0 {
				// a bare key only asserts presence
				raws = []string{""}
			}
			if err := add(kind, np.Name, raws); err != nil {
				return err
			}
		}
		return nil
	}

	if err := add(model.SignalURL, "", body.URL); err != nil {
		return nil, err
	}
	if err := addKeyed(model.SignalHeader, body.Headers); err != nil {
		return nil, err
	}
	if err := addKeyed(model.SignalCookie, body.Cookies); err != nil {
		return nil, err
	}
	if err := addKeyed(model.SignalMeta, body.Meta); err != nil {
		return nil, err
	}
	if err := add(model.SignalScript, "", append(append([]string{}, body.Script...), body.ScriptSrc...)); err != nil {
		return nil, err
	}
	if err := add(model.SignalGenerator, "", body.Generator); err != nil {
		return nil, err
	}
	if err := add(model.SignalHTML, "", body.HTML); err != nil {
		return nil, err
	}
	if len(c.Patterns) == 0 {
		return nil, &LoadError{Clue: name, Err: ErrNoPatterns}
	}

	for _, raw := range body.Implies {
		implied := stripDirectives(raw)
		if implied == "" {
			return nil, &LoadError{Clue: name, Field: "implies", Err: ErrEmptyImplied}
		}
		c.Implies = append(c.Implies, implied)
	}
	for _, raw := range body.Excludes {
		excluded := stripDirectives(raw)
		if excluded == "" {
			return nil, &LoadError{Clue: name, Field: "excludes", Err: errors.New("empty excluded technology name")}
		}
		c.Excludes = append(c.Excludes, excluded)
	}
	return c, nil
}
