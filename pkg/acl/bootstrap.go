package acl

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// RegistryConfig is the YAML shape consuming processes use to declare
// their type graph at startup instead of calling the registration methods
// one by one.
//
//	types:
//	  - id: cabinet
//	    table: cabinets
//	    id_column: id
//	    permissions: [cabinets.view, cabinets.edit]
//	  - id: folder
//	    table: folders
//	    id_column: id
//	    permissions: [folders.view, folders.edit]
//	    inherits: {parent: cabinet, column: cabinet_id}
//	  - id: recent_document
//	    proxy_of: document
type RegistryConfig struct {
	Types []TypeConfig `yaml:"types"`
}

// TypeConfig declares one type: either a stored type with a table, or a
// proxy of another type.
type TypeConfig struct {
	ID          string             `yaml:"id"`
	Table       string             `yaml:"table"`
	IDColumn    string             `yaml:"id_column"`
	ProxyOf     string             `yaml:"proxy_of"`
	Permissions []string           `yaml:"permissions"`
	Inherits    *InheritanceConfig `yaml:"inherits"`
}

// InheritanceConfig declares the parent relation of a type.
type InheritanceConfig struct {
	Parent string `yaml:"parent"`
	Column string `yaml:"column"`
}

// LoadRegistryConfig parses a YAML registry declaration.
func LoadRegistryConfig(r io.Reader) (*RegistryConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry config: %w", err)
	}

	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse registry config: %w", err)
	}

	for _, t := range cfg.Types {
		if t.ID == "" {
			return nil, fmt.Errorf("registry config: type with empty id")
		}
		if t.ProxyOf == "" && (t.Table == "" || t.IDColumn == "") {
			return nil, fmt.Errorf("registry config: type %q needs table and id_column", t.ID)
		}
		if t.ProxyOf != "" && t.Inherits != nil {
			return nil, fmt.Errorf("registry config: proxy type %q cannot declare inheritance", t.ID)
		}
	}

	return &cfg, nil
}

// Apply populates a registry from the declaration. Proxies are applied
// after stored types so forward references work; inheritance edges last so
// cycle checks see the full proxy map.
func (c *RegistryConfig) Apply(registry *Registry) error {
	for _, t := range c.Types {
		if t.ProxyOf != "" {
			continue
		}
		if err := registry.RegisterType(TypeID(t.ID), TypeInfo{Table: t.Table, IDColumn: t.IDColumn}); err != nil {
			return err
		}
	}

	for _, t := range c.Types {
		if t.ProxyOf == "" {
			continue
		}
		if err := registry.RegisterProxy(TypeID(t.ID), TypeID(t.ProxyOf)); err != nil {
			return err
		}
	}

	for _, t := range c.Types {
		for _, s := range t.Permissions {
			perm, err := ParsePermission(s)
			if err != nil {
				return fmt.Errorf("type %q: %w", t.ID, err)
			}
			registry.RegisterPermissions(TypeID(t.ID), perm)
		}
		if t.Inherits != nil {
			rel := Relation{Parent: TypeID(t.Inherits.Parent), Column: t.Inherits.Column}
			if err := registry.RegisterInheritance(TypeID(t.ID), rel); err != nil {
				return err
			}
		}
	}

	return nil
}
