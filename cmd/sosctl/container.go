package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narategithub/sos/pkg/container"
	"github.com/narategithub/sos/pkg/ods"
)

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Create or open a container directory",
}

var containerCreateCmd = &cobra.Command{
	Use:   "create DIR",
	Short: "Create a new container directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container.Create(args[0], containerOptions())
		if err != nil {
			return fmt.Errorf("create container: %w", err)
		}
		defer c.Close(ods.CommitSync)
		fmt.Printf("created container %s\n", c.Dir())
		return nil
	},
}

var containerOpenCmd = &cobra.Command{
	Use:   "open DIR",
	Short: "Open an existing container directory and report its schema count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container.Open(args[0], containerOptions())
		if err != nil {
			return fmt.Errorf("open container: %w", err)
		}
		defer c.Close(ods.CommitSync)

		count := 0
		s, err := c.Registry().First()
		for err == nil {
			count++
			s, err = c.Registry().Next(s)
		}
		fmt.Printf("opened container %s (%d schemas registered)\n", c.Dir(), count)
		return nil
	},
}

func init() {
	containerCmd.AddCommand(containerCreateCmd)
	containerCmd.AddCommand(containerOpenCmd)
}
