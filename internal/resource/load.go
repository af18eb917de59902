package resource

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Definition is the config-file shape of one resource entry, decoded via
// mapstructure from the `resources:` section of the agent's YAML config
// (SPEC_FULL.md "resource-catalogue loading from config").
type Definition struct {
	Name    string   `mapstructure:"name"`
	Methods []string `mapstructure:"methods"`
	Events  []string `mapstructure:"events"`
}

// LoadFromConfig decodes raw (as produced by viper's UnmarshalKey on a
// `resources` list) into a Catalogue. Every decoded resource uses the
// no-resource-specific-headers vtable: this spec defines no resource
// that overrides generic headers, so config-driven resources are always
// plain method/event vocabularies.
func LoadFromConfig(raw []map[string]any) (*Catalogue, error) {
	c := NewCatalogue()
	for _, m := range raw {
		var def Definition
		if err := mapstructure.Decode(m, &def); err != nil {
			return nil, err
		}
		if _, err := c.Register(def.Name, def.Methods, def.Events, noHeaders{}); err != nil {
			return nil, err
		}
	}
	if c.Len() == 0 {
		if err := RegisterBuiltins(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadFromFile reads a standalone resource-catalogue YAML file (the
// `agent.resource_catalogue` config path) shaped as a top-level
// `resources:` list of Definition entries, falling back to the
// built-in catalogue when the file defines none.
func LoadFromFile(path string) (*Catalogue, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("mrcpd: resource: read catalogue file %s: %w", path, err)
	}

	var raw []map[string]any
	if err := v.UnmarshalKey("resources", &raw); err != nil {
		return nil, fmt.Errorf("mrcpd: resource: decode catalogue file %s: %w", path, err)
	}
	return LoadFromConfig(raw)
}
