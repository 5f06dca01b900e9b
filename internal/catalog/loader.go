package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/gmfm88.yaml
var embeddedDefinition []byte

// Source supplies the raw catalog definition
type Source interface {
	Name() string
	Read() ([]byte, error)
}

type fileSource string

// FileSource reads the definition from a YAML or JSON file
func FileSource(path string) Source { return fileSource(path) }

func (s fileSource) Name() string { return string(s) }

func (s fileSource) Read() ([]byte, error) {
	data, err := os.ReadFile(string(s))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

type bytesSource struct {
	name string
	data []byte
}

// BytesSource serves an in-memory definition
func BytesSource(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

func (s bytesSource) Name() string          { return s.name }
func (s bytesSource) Read() ([]byte, error) { return s.data, nil }

// EmbeddedSource serves the GMFM-88 score sheet compiled into the binary
func EmbeddedSource() Source {
	return BytesSource("embedded:gmfm88.yaml", embeddedDefinition)
}

// --- YAML file structs ---

// domainFile represents one entry of the definition, keyed by domain code
type domainFile struct {
	Dimension string     `yaml:"dimension"`
	Title     string     `yaml:"title"`
	Items     []itemFile `yaml:"items"`
}

// itemFile represents a single item entry
type itemFile struct {
	Number      int    `yaml:"number"`
	Description string `yaml:"description"`
	GMFM66      bool   `yaml:"gmfm66"`
}

// parseDefinition decodes the definition keeping the declared domain order.
// JSON input is accepted as YAML.
func parseDefinition(data []byte) ([]Domain, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("definition is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("definition must be a mapping keyed by domain code (line %d)", root.Line)
	}

	domains := make([]Domain, 0, len(root.Content)/2)
	seen := make(map[ItemID]string)

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		var df domainFile
		if err := value.Decode(&df); err != nil {
			return nil, fmt.Errorf("domain %q: %w", key.Value, err)
		}

		code := df.Dimension
		if code == "" {
			code = key.Value
		}
		if df.Title == "" {
			return nil, fmt.Errorf("domain %q: title is required", code)
		}

		domain := Domain{Code: code, Title: df.Title, Items: make([]AssessmentItem, 0, len(df.Items))}
		for _, it := range df.Items {
			if it.Number <= 0 {
				return nil, fmt.Errorf("domain %q: item number must be positive, got %d", code, it.Number)
			}
			id := ItemID(it.Number)
			if prev, dup := seen[id]; dup {
				return nil, fmt.Errorf("item %d declared in both %q and %q", id, prev, code)
			}
			seen[id] = code
			domain.Items = append(domain.Items, AssessmentItem{
				Number:      id,
				Description: it.Description,
				Reduced:     it.GMFM66,
			})
		}
		domains = append(domains, domain)
	}

	if len(domains) == 0 {
		return nil, fmt.Errorf("definition declares no domains")
	}
	return domains, nil
}
