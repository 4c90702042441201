package main

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narategithub/sos/pkg/container"
	"github.com/narategithub/sos/pkg/ods"
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Inspect the live objects in a container's data ODS",
}

var objectDumpCmd = &cobra.Command{
	Use:   "dump DIR ODS_NAME",
	Short: "List every live object in a named data ODS",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, name := args[0], args[1]

		c, err := container.Open(dir, containerOptions())
		if err != nil {
			return fmt.Errorf("open container: %w", err)
		}
		defer c.Close(ods.CommitSync)

		o, err := c.OpenODS(name)
		if err != nil {
			return fmt.Errorf("open ods %q: %w", name, err)
		}

		count := 0
		o.Iter(func(ref ods.Ref, data []byte) {
			count++
			var schemaID uint32
			if len(data) >= 4 {
				schemaID = binary.LittleEndian.Uint32(data[:4])
			}
			fmt.Printf("ref=%-10d size=%-6d schema_id=%d\n", ref, len(data), schemaID)
		})
		fmt.Printf("%d objects\n", count)
		return nil
	},
}

func init() {
	objectCmd.AddCommand(objectDumpCmd)
}
