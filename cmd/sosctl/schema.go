package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/narategithub/sos/pkg/container"
	"github.com/narategithub/sos/pkg/ods"
	"github.com/narategithub/sos/pkg/schema"
	"github.com/narategithub/sos/pkg/stype"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect or register schemas against a container",
}

// attrTemplate is one attribute entry in a schema template JSON file.
type attrTemplate struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed,omitempty"`
	IdxKind string `json:"idx_kind,omitempty"`
	KeyType string `json:"key_type,omitempty"`
}

// schemaTemplateFile is the JSON shape sosctl schema add reads: a flat
// declaration of a schema's name and attribute list, mirroring
// schema.FromTemplate's in-memory TemplateAttr shape.
type schemaTemplateFile struct {
	Name  string         `json:"name"`
	Attrs []attrTemplate `json:"attrs"`
}

var schemaAddCmd = &cobra.Command{
	Use:   "add DIR TEMPLATE.json",
	Short: "Register a schema from a JSON template file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, templatePath := args[0], args[1]

		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		var tf schemaTemplateFile
		if err := json.Unmarshal(raw, &tf); err != nil {
			return fmt.Errorf("parse template: %w", err)
		}

		s := schema.New(tf.Name)
		for _, a := range tf.Attrs {
			typ, err := stype.ParseType(a.Type)
			if err != nil {
				return fmt.Errorf("attr %q: %w", a.Name, err)
			}
			if _, err := s.AttrAdd(a.Name, typ); err != nil {
				return fmt.Errorf("attr %q: %w", a.Name, err)
			}
			if a.Indexed {
				if err := s.IndexAdd(a.Name); err != nil {
					return fmt.Errorf("attr %q: index: %w", a.Name, err)
				}
				if a.IdxKind != "" || (a.KeyType != "" && a.KeyType != stype.DefaultKeyType(typ)) {
					added, err := s.AttrByName(a.Name)
					if err != nil {
						return fmt.Errorf("attr %q: %w", a.Name, err)
					}
					idxKind, keyType := added.IdxKind(), added.KeyType()
					if a.IdxKind != "" {
						idxKind = a.IdxKind
					}
					if a.KeyType != "" {
						keyType = a.KeyType
					}
					if err := s.IndexModify(a.Name, idxKind, keyType); err != nil {
						return fmt.Errorf("attr %q: key type: %w", a.Name, err)
					}
				}
			}
		}

		c, err := container.Open(dir, containerOptions())
		if err != nil {
			return fmt.Errorf("open container: %w", err)
		}
		defer c.Close(ods.CommitSync)

		if err := c.Registry().Add(s); err != nil {
			return fmt.Errorf("add schema %q: %w", tf.Name, err)
		}
		fmt.Printf("registered schema %q (id %d)\n", s.Name(), s.ID())
		return nil
	},
}

var schemaLsCmd = &cobra.Command{
	Use:   "ls DIR",
	Short: "List every schema registered in a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container.Open(args[0], containerOptions())
		if err != nil {
			return fmt.Errorf("open container: %w", err)
		}
		defer c.Close(ods.CommitSync)

		s, err := c.Registry().First()
		for err == nil {
			fmt.Printf("%4d  %-24s %d attrs\n", s.ID(), s.Name(), s.AttrCount())
			s, err = c.Registry().Next(s)
		}
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaAddCmd)
	schemaCmd.AddCommand(schemaLsCmd)
}
