package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"skirmish/lobby"
)

// Emits the JSON schema for the match relay frame so external tooling can
// validate captured traffic.
func main() {
	var out string
	flag.StringVar(&out, "out", "", "write the schema to this file instead of stdout")
	flag.Parse()

	reflector := jsonschema.Reflector{}
	schema := reflector.Reflect(&lobby.Frame{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema: marshal failed: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "schema: write %s: %v\n", out, err)
		os.Exit(1)
	}
}
