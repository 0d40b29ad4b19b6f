package oplog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Serializer reads and writes one log file format.
type Serializer interface {
	Parse(r io.Reader) ([]Record, error)
	Serialize(records []Record) ([]byte, error)
}

// DefaultSerializers returns the supported formats keyed by file extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".json":   JSONSerializer{},
		".yaml":   YAMLSerializer{},
		".yml":    YAMLSerializer{},
		".ndjson": NDJSONSerializer{},
	}
}

// --- JSON Serializer ---

// JSONSerializer handles a JSON array of records.
type JSONSerializer struct{}

func (JSONSerializer) Parse(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, "invalid json")
	}
	return records, nil
}

func (JSONSerializer) Serialize(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// --- NDJSON Serializer ---

// NDJSONSerializer handles one JSON record per line. Blank lines are skipped,
// which makes it suitable for append-only logs.
type NDJSONSerializer struct{}

func (NDJSONSerializer) Parse(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, errors.Wrapf(err, "invalid ndjson at line %d", line)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read ndjson")
	}
	return records, nil
}

func (NDJSONSerializer) Serialize(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, errors.Wrapf(err, "encode record %s", rec.ID)
		}
	}
	return buf.Bytes(), nil
}

// --- YAML Serializer ---

// YAMLSerializer handles a YAML sequence of records. Records go through a
// generic tree so the JSON field names and payload envelopes are shared with
// the other formats.
type YAMLSerializer struct{}

func (YAMLSerializer) Parse(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var tree []any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, errors.Wrap(err, "invalid yaml")
	}
	if len(tree) == 0 {
		return nil, nil
	}
	bridged, err := json.Marshal(normalize(tree))
	if err != nil {
		return nil, errors.Wrap(err, "invalid yaml")
	}
	var records []Record
	if err := json.Unmarshal(bridged, &records); err != nil {
		return nil, errors.Wrap(err, "invalid yaml")
	}
	return records, nil
}

func (YAMLSerializer) Serialize(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	var tree []any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}

// normalize turns the map[any]any nodes yaml may produce for non-string keys
// into map[string]any so the tree can be re-encoded as JSON.
func normalize(val any) any {
	switch v := val.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, item := range v {
			m[k] = normalize(item)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, item := range v {
			m[fmt.Sprint(k)] = normalize(item)
		}
		return m
	case []any:
		l := make([]any, len(v))
		for i, item := range v {
			l[i] = normalize(item)
		}
		return l
	default:
		return v
	}
}
