package output

import (
	"io"

	gojson "github.com/goccy/go-json"
)

// PrintJSON writes data as indented JSON to the writer.
func PrintJSON(w io.Writer, data any) error {
	encoder := gojson.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
