// Package unit models a compilation unit as the bytecode collaborator hands
// it over: classes in declaration order with their supertypes and members.
package unit

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/swind/go-dexmap/mapping"
)

type Member struct {
	Name string `yaml:"name"`
	// Descriptor is the argument list of a method, kept for display only.
	Descriptor string `yaml:"descriptor,omitempty"`
}

type Class struct {
	Name       string   `yaml:"name"`
	Super      string   `yaml:"super,omitempty"`
	Interfaces []string `yaml:"interfaces,omitempty"`
	Fields     []Member `yaml:"fields,omitempty"`
	Methods    []Member `yaml:"methods,omitempty"`
}

type Unit struct {
	Name    string   `yaml:"name"`
	Classes []*Class `yaml:"classes"`
}

// Load reads a unit from YAML. Class names must be unique.
func Load(r io.Reader) (*Unit, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var u Unit
	if err := decoder.Decode(&u); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode unit: %w", err)
	}

	seen := make(map[string]bool, len(u.Classes))
	for i, class := range u.Classes {
		if class == nil || class.Name == "" {
			return nil, fmt.Errorf("unit %q: class #%d has no name", u.Name, i+1)
		}
		if seen[class.Name] {
			return nil, fmt.Errorf("unit %q: class %q declared twice", u.Name, class.Name)
		}
		seen[class.Name] = true
	}
	return &u, nil
}

func LoadFile(path string) (*Unit, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	u, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if u.Name == "" {
		u.Name = path
	}
	return u, nil
}

func (u *Unit) Save(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(u); err != nil {
		return err
	}
	return encoder.Close()
}

func (u *Unit) Clone() *Unit {
	clone := Unit{Name: u.Name, Classes: make([]*Class, len(u.Classes))}
	for i, class := range u.Classes {
		c := *class
		c.Interfaces = append([]string(nil), class.Interfaces...)
		c.Fields = append([]Member(nil), class.Fields...)
		c.Methods = append([]Member(nil), class.Methods...)
		clone.Classes[i] = &c
	}
	return &clone
}

// ClassNames returns the class names in declaration order.
func (u *Unit) ClassNames() []string {
	names := make([]string, len(u.Classes))
	for i, class := range u.Classes {
		names[i] = class.Name
	}
	return names
}

func (u *Unit) Find(name string) *Class {
	for _, class := range u.Classes {
		if class.Name == name {
			return class
		}
	}
	return nil
}

// RenameClasses renames declared classes and every supertype reference
// found in renames. Names missing from renames are left alone.
func (u *Unit) RenameClasses(renames map[string]string) {
	rename := func(name string) string {
		if renamed, ok := renames[name]; ok {
			return renamed
		}
		return name
	}

	for _, class := range u.Classes {
		class.Name = rename(class.Name)
		if class.Super != "" {
			class.Super = rename(class.Super)
		}
		for i, name := range class.Interfaces {
			class.Interfaces[i] = rename(name)
		}
	}
}

// RenameMembers replaces every field and method name with fn's result and
// stops at the first error. The owner passed to fn is the class name at the
// time of the call.
func (u *Unit) RenameMembers(fn func(kind mapping.Kind, owner string, name string) (string, error)) error {
	rename := func(kind mapping.Kind, owner string, members []Member) error {
		for i := range members {
			name, err := fn(kind, owner, members[i].Name)
			if err != nil {
				return err
			}
			members[i].Name = name
		}
		return nil
	}

	for _, class := range u.Classes {
		if err := rename(mapping.Field, class.Name, class.Fields); err != nil {
			return err
		}
		if err := rename(mapping.Method, class.Name, class.Methods); err != nil {
			return err
		}
	}
	return nil
}
