package ops

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cytops/cytops/internal/table"
)

// WriteTable writes a table in the given format. Tabular formats only;
// use WriteValue for yaml/json documents and WriteString for txt.
func WriteTable(path, format string, t *table.Table) error {
	switch format {
	case FormatCSV:
		return writeDelimited(path, ',', t)
	case FormatTSV:
		return writeDelimited(path, '\t', t)
	case FormatJSON:
		return writeTableJSON(path, t)
	default:
		return &UnsupportedFormatError{Format: format}
	}
}

func writeDelimited(path string, delim rune, t *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = delim
	if err := w.Write(t.Columns()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	for i := 0; i < t.Len(); i++ {
		if err := w.Write(t.Row(i)); err != nil {
			return fmt.Errorf("writing %s row %d: %w", path, i, err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeTableJSON(path string, t *table.Table) error {
	columns := t.Columns()
	objects := make([]map[string]string, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		obj := make(map[string]string, len(columns))
		for j, c := range columns {
			obj[c] = row[j]
		}
		objects = append(objects, obj)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(objects)
}

// WriteValue writes an arbitrary document as yaml or json. The value
// must be a map for these formats, matching how run manifests and
// configuration snapshots are produced.
func WriteValue(path, format string, value map[string]any) error {
	switch format {
	case FormatYAML:
		raw, err := yaml.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		return os.WriteFile(path, raw, 0o644)
	case FormatJSON:
		raw, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		return os.WriteFile(path, append(raw, '\n'), 0o644)
	default:
		return &UnsupportedFormatError{Format: format}
	}
}

// WriteString writes a plain text file.
func WriteString(path, format, data string) error {
	if format != FormatTXT {
		return &UnsupportedFormatError{Format: format}
	}
	return os.WriteFile(path, []byte(data), 0o644)
}
