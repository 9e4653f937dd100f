package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// writeStructured renders v as json or yaml. It reports false for any
// other format so the caller can fall back to its text rendering.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// Go through JSON so field names and embedded raw documents match
		// the json output.
		b, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "", "text", "table":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (valid: text, json, yaml)", format)
	}
}
