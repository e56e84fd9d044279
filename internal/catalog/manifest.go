package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"actioner/internal/constants"
)

var knownConfigTypes = map[string]bool{
	constants.ConfigTypeActionRule:      true,
	constants.ConfigTypeAction:          true,
	constants.ConfigTypeActionPerformer: true,
	constants.ConfigTypeReactingPolicy:  true,
	constants.ConfigTypeReactionRule:    true,
}

// Manifest is a file of catalog entries applied with `catalog apply`.
//
//	entries:
//	  - config_type: ActionRule
//	    name: EnqueueForReview
//	    fields:
//	      must_have_labels: [{K: Classification, V: true_positive}]
type Manifest struct {
	Entries []ManifestEntry `yaml:"entries"`
}

type ManifestEntry struct {
	ConfigType string                 `yaml:"config_type"`
	Name       string                 `yaml:"name"`
	Subtype    string                 `yaml:"subtype"`
	Fields     map[string]interface{} `yaml:"fields"`
}

func LoadManifestFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return LoadManifest(f)
}

// LoadManifest decodes a manifest and checks that every entry would load
// into a snapshot.
func LoadManifest(r io.Reader) ([]Entry, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	entries := make([]Entry, 0, len(m.Entries))
	for i, me := range m.Entries {
		if !knownConfigTypes[me.ConfigType] {
			return nil, fmt.Errorf("entry %d: unknown config_type %q", i, me.ConfigType)
		}
		if me.Name == "" {
			return nil, fmt.Errorf("entry %d: %s has no name", i, me.ConfigType)
		}
		fields := me.Fields
		if fields == nil {
			fields = map[string]interface{}{}
		}
		data, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s %q): %w", i, me.ConfigType, me.Name, err)
		}
		e := Entry{ConfigType: me.ConfigType, Name: me.Name, Subtype: me.Subtype, Fields: data}
		if err := NewSnapshot(nil).add(e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
