package prompts

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Env names a YAML file that replaces the embedded catalog.
const Env = "PROMPTS_YAML"

const (
	SummarySystem = "summary_system"
	SummaryUser   = "summary_user"
	ChatSystem    = "chat_system"
	Refusal       = "refusal"
)

var requiredKeys = []string{SummarySystem, SummaryUser, ChatSystem, Refusal}

//go:embed prompts.yaml
var promptsFS embed.FS

type yamlCatalog struct {
	Version int               `yaml:"version"`
	Prompts map[string]string `yaml:"prompts"`
}

// Catalog is the resolved set of model instructions.
type Catalog struct {
	prompts map[string]string
}

// Load reads the catalog from path, or from the embedded default when path
// is empty.
func Load(path string) (*Catalog, error) {
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFromEnv is Load(os.Getenv(Env)).
func LoadFromEnv() (*Catalog, error) {
	return Load(strings.TrimSpace(os.Getenv(Env)))
}

func read(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}
	return promptsFS.ReadFile("prompts.yaml")
}

func Parse(data []byte) (*Catalog, error) {
	var raw yamlCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if len(raw.Prompts) == 0 {
		return nil, errors.New("parse prompts: no prompts defined")
	}
	var missing []string
	for _, k := range requiredKeys {
		if strings.TrimSpace(raw.Prompts[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("parse prompts: missing %s", strings.Join(missing, ", "))
	}

	refusal := strings.TrimSpace(raw.Prompts[Refusal])
	out := make(map[string]string, len(raw.Prompts))
	for k, v := range raw.Prompts {
		v = strings.ReplaceAll(v, "{{refusal}}", refusal)
		out[k] = strings.TrimRight(v, "\n")
	}
	out[Refusal] = refusal
	return &Catalog{prompts: out}, nil
}

// MustDefault returns the embedded catalog and panics if it is invalid.
func MustDefault() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Get(name string) string {
	if c == nil {
		return ""
	}
	return c.prompts[name]
}
