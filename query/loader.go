package query

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Loader loads query documents by name.
type Loader interface {
	Load(name string) (*Document, error)
}

// FileLoader loads documents from YAML or JSON files on disk. A document's
// name is its file name without extension.
type FileLoader struct {
	dirs []string
}

var documentExts = []string{".yaml", ".yml", ".json"}

// NewFileLoader creates a loader that searches the given directories.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load searches for {name}.yaml, {name}.yml or {name}.json in each directory.
func (l *FileLoader) Load(name string) (*Document, error) {
	for _, dir := range l.dirs {
		for _, ext := range documentExts {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("query: document %q not found in %v", name, l.dirs)
}

// LoadAll registers every document found under the loader's directories,
// recursively, into lib. It returns the number of documents registered.
func (l *FileLoader) LoadAll(lib *Library) (int, error) {
	count := 0
	for _, dir := range l.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isDocumentFile(path) {
				return nil
			}
			doc, err := LoadFile(path)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if err := lib.Register(name, doc); err != nil {
				return fmt.Errorf("query: registering %s: %w", path, err)
			}
			count++
			return nil
		})
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func isDocumentFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range documentExts {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFile reads and decodes one document file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc *Document
	if strings.EqualFold(filepath.Ext(path), ".json") {
		doc, err = ParseJSON(data)
	} else {
		doc, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("query: parsing %s: %w", path, err)
	}
	return doc, nil
}

// ParseJSON decodes a JSON query document.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseYAML decodes a YAML query document.
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
