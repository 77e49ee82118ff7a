package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pstuifzand/section-outliner/internal/model"
)

// ErrLegacyLayout is returned when a file holds the flat legacy layout and no
// converter was configured
var ErrLegacyLayout = errors.New("document uses the legacy flat layout")

// LegacyConverter turns a flat block list into a section tree
type LegacyConverter interface {
	Convert(blocks []model.Block) (*model.Document, error)
}

// JSONStore handles JSON file persistence
type JSONStore struct {
	FilePath string
	// ReadOnly is set for backup files, which are never written back
	ReadOnly bool
	// Converted is set when the last Load converted a legacy file
	Converted bool

	converter LegacyConverter
}

// NewJSONStore creates a new JSON store for the given file path
func NewJSONStore(filePath string) *JSONStore {
	return &JSONStore{
		FilePath: filePath,
		ReadOnly: IsBackupFile(filePath),
	}
}

// WithConverter sets the converter used for legacy files
func (s *JSONStore) WithConverter(c LegacyConverter) *JSONStore {
	s.converter = c
	return s
}

// Load loads a document from a JSON file. A missing file yields a document
// with one empty section.
func (s *JSONStore) Load() (*model.Document, error) {
	s.Converted = false
	s.ReadOnly = IsBackupFile(s.FilePath)
	if s.ReadOnly {
		doc, _, err := LoadBackup(s.FilePath)
		return doc, err
	}
	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewDocument(), nil
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	doc, converted, err := Decode(data, s.converter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.FilePath, err)
	}
	s.Converted = converted
	return doc, nil
}

// Decode parses raw document JSON. Data in the legacy layout is converted
// with c when c is not nil.
func Decode(data []byte, c LegacyConverter) (doc *model.Document, converted bool, err error) {
	layout, err := DetectLayout(data)
	if err != nil {
		return nil, false, err
	}
	if layout == LayoutLegacy {
		if c == nil {
			return nil, false, ErrLegacyLayout
		}
		var file legacyFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, false, fmt.Errorf("failed to parse JSON: %w", err)
		}
		doc, err := c.Convert(file.Blocks)
		if err != nil {
			return nil, false, fmt.Errorf("convert legacy document: %w", err)
		}
		return doc, true, nil
	}
	doc, err = model.ParseDocument(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return doc, false, nil
}

// Save saves a document to a JSON file
func (s *JSONStore) Save(doc *model.Document) error {
	if s.ReadOnly {
		return fmt.Errorf("refusing to overwrite backup file %s", s.FilePath)
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(s.FilePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return writeFileAtomic(s.FilePath, data)
}

// FileExists checks if the document file exists
func (s *JSONStore) FileExists() bool {
	_, err := os.Stat(s.FilePath)
	return err == nil
}

type legacyFile struct {
	Blocks []model.Block `json:"blocks"`
}

// writeFileAtomic writes through a temporary file and a rename so readers
// never see a half written file
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
