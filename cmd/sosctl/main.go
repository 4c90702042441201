// Command sosctl is a thin administrative tool over pkg/container: it
// creates and opens containers, adds schemas from a JSON template
// file, lists registered schemas, dumps the live objects in a named
// data ODS, and dumps an ODS's write-ahead log. Every subcommand is a
// direct call into pkg/container, pkg/schema, or pkg/wal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sosctl:", err)
		os.Exit(1)
	}
}
