// Command gen-specfile-schema reflects the current specfile format
// (pkg/specfile.Document, spec.md §4.5/§6.2) into a JSON Schema document,
// the same way dalec's cmd/gen-jsonschema reflects dalec.Spec, generalized
// from one fixed output path to an optional argument.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/nscaledev/spackcore/pkg/specfile"
)

func main() {
	var r jsonschema.Reflector
	if err := r.AddGoComments("github.com/nscaledev/spackcore", "./"); err != nil {
		panic(err)
	}

	schema := r.Reflect(&specfile.Document{})

	// Dependency hash references are resolved by lookup after every node
	// loads (spec.md §4.5); a reader must tolerate forward references, so
	// nothing here marks "dependencies" as restricted beyond the shape
	// nodeObj already declares.

	dt, err := json.MarshalIndent(schema, "", "\t")
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 {
		if err := os.MkdirAll(filepath.Dir(os.Args[1]), 0o755); err != nil {
			panic(err)
		}
		if err := os.WriteFile(os.Args[1], dt, 0o644); err != nil {
			panic(err)
		}
		return
	}
	fmt.Println(string(dt))
}
