package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// modalityCategory is a bookkeeping category in the metrics file that is never
// offered on the form.
const modalityCategory = "Modality"

// imagingCategories are routed to the imaging half regardless of prefix.
var imagingCategories = map[string]bool{"Lesion Information": true}

// IsImagingCategory reports whether a category belongs to the imaging half.
func IsImagingCategory(category string) bool {
	return strings.HasPrefix(category, "Imaging") ||
		strings.HasPrefix(category, "Image") ||
		imagingCategories[category]
}

// Split partitions a flat metrics tree into behavioral and imaging halves and
// applies defaults to every entry.
func Split(all Catalog) Pair {
	p := Pair{Behavioral: Catalog{}, Imaging: Catalog{}}
	for category, subs := range all {
		if category == modalityCategory {
			continue
		}
		if IsImagingCategory(category) {
			p.Imaging[category] = subs
		} else {
			p.Behavioral[category] = subs
		}
	}
	p.Behavioral.ApplyDefaults()
	p.Imaging.ApplyDefaults()
	return p
}

// Parse decodes a metrics tree from JSON.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return c, nil
}

// LoadFile reads a metrics tree from a JSON file, or YAML when the extension
// says so, and splits it.
func LoadFile(path string) (Pair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pair{}, fmt.Errorf("read metrics file: %w", err)
	}
	var all Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &all); err != nil {
			return Pair{}, fmt.Errorf("decode metrics yaml: %w", err)
		}
	default:
		all, err = Parse(data)
		if err != nil {
			return Pair{}, err
		}
	}
	return Split(all), nil
}
