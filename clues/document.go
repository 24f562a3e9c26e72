package clues

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// document is the on-disk clue layout. Object-valued fields keep their declaration order because
// rule-file order is the final tie-break when matches compete.
type document struct {
	Categories categoryMap `json:"categories" yaml:"categories"`
	Apps       appList     `json:"apps" yaml:"apps"`
}

type rawClue struct {
	Cats      stringList `json:"cats" yaml:"cats"`
	Headers   patternMap `json:"headers" yaml:"headers"`
	Cookies   patternMap `json:"cookies" yaml:"cookies"`
	Meta      patternMap `json:"meta" yaml:"meta"`
	HTML      stringList `json:"html" yaml:"html"`
	Script    stringList `json:"script" yaml:"script"`
	ScriptSrc stringList `json:"scriptSrc" yaml:"scriptSrc"`
	URL       stringList `json:"url" yaml:"url"`
	Generator stringList `json:"generator" yaml:"generator"`
	Implies   stringList `json:"implies" yaml:"implies"`
	Excludes  stringList `json:"excludes" yaml:"excludes"`
	Website   string     `json:"website" yaml:"website"`
}

type namedClue struct {
	Name string
	Body rawClue
}

type appList []namedClue

func (a *appList) UnmarshalJSON(data []byte) error {
	return eachJSONField(data, func(key string, raw json.RawMessage) error {
		var body rawClue
		if err := json.Unmarshal(raw, &body); err != nil {
			return &LoadError{Clue: key, Err: err}
		}
		*a = append(*a, namedClue{Name: key, Body: body})
		return nil
	})
}

func (a *appList) UnmarshalYAML(node *yaml.Node) error {
	return eachYAMLField(node, func(key string, value *yaml.Node) error {
		var body rawClue
		if err := value.Decode(&body); err != nil {
			return &LoadError{Clue: key, Err: err}
		}
		*a = append(*a, namedClue{Name: key, Body: body})
		return nil
	})
}

type namedPatterns struct {
	Name     string
	Patterns stringList
}

// patternMap is an ordered name -> pattern(s) mapping (headers, cookies, meta).
type patternMap []namedPatterns

func (m *patternMap) UnmarshalJSON(data []byte) error {
	return eachJSONField(data, func(key string, raw json.RawMessage) error {
		var list stringList
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*m = append(*m, namedPatterns{Name: key, Patterns: list})
		return nil
	})
}

func (m *patternMap) UnmarshalYAML(node *yaml.Node) error {
	return eachYAMLField(node, func(key string, value *yaml.Node) error {
		var list stringList
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*m = append(*m, namedPatterns{Name: key, Patterns: list})
		return nil
	})
}

// stringList accepts a scalar or a list of scalars.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		for _, item := range items {
			s, err := jsonScalar(item)
			if err != nil {
				return err
			}
			*l = append(*l, s)
		}
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s, err := jsonScalar(data)
	if err != nil {
		return err
	}
	*l = stringList{s}
	return nil
}

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		*l = stringList{node.Value}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected scalar list item", item.Line)
			}
			*l = append(*l, item.Value)
		}
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
	return nil
}

func jsonScalar(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string or number, got %s", string(raw))
}

// categoryMap maps category ids to names. Values may be plain names or {"name": ...} objects.
type categoryMap map[string]string

func (c *categoryMap) UnmarshalJSON(data []byte) error {
	*c = make(categoryMap)
	return eachJSONField(data, func(key string, raw json.RawMessage) error {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			(*c)[key] = name
			return nil
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("category %s: %w", key, err)
		}
		(*c)[key] = obj.Name
		return nil
	})
}

func (c *categoryMap) UnmarshalYAML(node *yaml.Node) error {
	*c = make(categoryMap)
	return eachYAMLField(node, func(key string, value *yaml.Node) error {
		if value.Kind == yaml.ScalarNode {
			(*c)[key] = value.Value
			return nil
		}
		var obj struct {
			Name string `yaml:"name"`
		}
		if err := value.Decode(&obj); err != nil {
			return fmt.Errorf("category %s: %w", key, err)
		}
		(*c)[key] = obj.Name
		return nil
	})
}

// eachJSONField walks a JSON object in declaration order.
func eachJSONField(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// eachYAMLField walks a YAML mapping in declaration order.
func eachYAMLField(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: expected scalar key", key.Line)
		}
		if err := fn(key.Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
