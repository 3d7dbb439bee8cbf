package writeback

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// WriteFileAtomic replaces name with data. The content goes to a temp file
// in the same directory first and is then renamed over name, so readers see
// either the old or the new file.
func WriteFileAtomic(fs billy.Filesystem, name string, data []byte) error {
	dir := path.Dir(name)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := util.TempFile(fs, dir, ".tracegen-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	// Keep the permissions of the file being replaced.
	if ch, ok := fs.(billy.Change); ok {
		if info, err := fs.Stat(name); err == nil {
			_ = ch.Chmod(tmpName, info.Mode()) // best-effort permission sync
		}
	}

	if err := fs.Rename(tmpName, name); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content of name, or os.ErrNotExist wrapped when it is
// missing.
func ReadFile(fs billy.Filesystem, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() // read-only, safe to ignore
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Splice replaces bytes [start, end) of name with content and writes the
// result atomically.
func Splice(fs billy.Filesystem, name string, start, end int, content []byte) error {
	src, err := ReadFile(fs, name)
	if err != nil {
		return fmt.Errorf("read source %s: %w", name, err)
	}
	if start < 0 || end > len(src) || start > end {
		return fmt.Errorf("invalid byte range [%d:%d] for file of length %d", start, end, len(src))
	}

	result := make([]byte, 0, start+len(content)+len(src)-end)
	result = append(result, src[:start]...)
	result = append(result, content...)
	result = append(result, src[end:]...)
	return WriteFileAtomic(fs, name, result)
}

// Exists reports whether name exists on fs.
func Exists(fs billy.Filesystem, name string) bool {
	_, err := fs.Stat(name)
	return err == nil || !os.IsNotExist(err)
}
