package oplog

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/aretw0/concord/pkg/core"
)

// TempFilePrefix is the prefix of the temporary files used by WriteFile.
const TempFilePrefix = "concord-tmp-"

// ErrUnsupportedFormat is returned for a log file with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported log format")

// SerializerFor returns the serializer registered for the extension of path.
func SerializerFor(path string) (Serializer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	s, ok := DefaultSerializers()[ext]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}
	return s, nil
}

// IsLogFile reports whether path has a supported extension. Temporary files
// written by WriteFile are excluded.
func IsLogFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), TempFilePrefix) {
		return false
	}
	_, err := SerializerFor(path)
	return err == nil
}

// Read decodes the operations in r with s.
func Read(r io.Reader, s Serializer) ([]core.Operation, error) {
	records, err := s.Parse(r)
	if err != nil {
		return nil, err
	}
	return Operations(records)
}

// ReadFile decodes the log at path, picking the format from its extension.
func ReadFile(path string) ([]core.Operation, error) {
	s, err := SerializerFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read log")
	}
	ops, err := Read(bytes.NewReader(data), s)
	if err != nil {
		return nil, errors.Wrapf(err, "log %s", path)
	}
	return ops, nil
}

// WriteFile encodes ops in the format matching the extension of path and
// replaces the file atomically.
func WriteFile(path string, ops []core.Operation) error {
	s, err := SerializerFor(path)
	if err != nil {
		return err
	}
	records, err := Records(ops)
	if err != nil {
		return err
	}
	data, err := s.Serialize(records)
	if err != nil {
		return errors.Wrapf(err, "encode log %s", path)
	}
	return writeFileAtomic(path, data, 0o644)
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(filename), TempFilePrefix+"*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to write to temp file")
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return errors.Wrap(err, "failed to chmod temp file")
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return errors.Wrapf(err, "failed to rename temp file to %s", filename)
	}
	return nil
}
