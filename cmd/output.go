package cmd

import (
	"encoding/json"
	"io"

	"github.com/xkilldash9x/socialpilot/api/schemas"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parsePlatforms parses args, defaulting to every platform when args is empty.
func parsePlatforms(args []string) ([]schemas.Platform, error) {
	if len(args) == 0 {
		return schemas.Platforms, nil
	}
	out := make([]schemas.Platform, 0, len(args))
	for _, a := range args {
		p, err := schemas.ParsePlatform(a)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
