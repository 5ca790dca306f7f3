package vm

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/zip"
)

// Class file extensions, in lookup order.
const (
	extJS = ".js"
	extTS = ".ts"
)

// Classpath resolves class files from directories and .zip archives. For
// class a/b/C it looks for a/b/C.js, then a/b/C.ts, in each entry in order.
type Classpath struct {
	entries []classpathEntry
	closers []io.Closer
}

type classpathEntry struct {
	name string
	fsys fs.FS
}

// OpenClasspath opens every entry. A missing or unreadable entry is an
// error.
func OpenClasspath(entries []string) (*Classpath, error) {
	cp := &Classpath{}
	for _, name := range entries {
		info, err := os.Stat(name)
		if err != nil {
			cp.Close()
			return nil, fmt.Errorf("class path entry %q: %w", name, err)
		}

		if info.IsDir() {
			cp.entries = append(cp.entries, classpathEntry{name: name, fsys: os.DirFS(name)})
			continue
		}

		if !strings.EqualFold(filepath.Ext(name), ".zip") {
			cp.Close()
			return nil, fmt.Errorf("class path entry %q is neither a directory nor a .zip archive", name)
		}
		zr, err := zip.OpenReader(name)
		if err != nil {
			cp.Close()
			return nil, fmt.Errorf("opening archive %q: %w", name, err)
		}
		cp.closers = append(cp.closers, zr)
		cp.entries = append(cp.entries, classpathEntry{name: name, fsys: &zr.Reader})
	}
	return cp, nil
}

// LoadClass returns the JavaScript source of the class at classPath.
// TypeScript class files are transpiled.
func (cp *Classpath) LoadClass(classPath string) (string, bool, error) {
	if !fs.ValidPath(classPath) {
		return "", false, nil
	}
	for _, e := range cp.entries {
		for _, ext := range []string{extJS, extTS} {
			data, err := fs.ReadFile(e.fsys, classPath+ext)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return "", false, fmt.Errorf("reading %s%s from %s: %w", classPath, ext, e.name, err)
			}
			if ext == extTS {
				src, err := Transpile(string(data))
				if err != nil {
					return "", false, fmt.Errorf("transpiling %s%s from %s: %w", classPath, ext, e.name, err)
				}
				return src, true, nil
			}
			return string(data), true, nil
		}
	}
	return "", false, nil
}

// Entries returns the class path entry names.
func (cp *Classpath) Entries() []string {
	names := make([]string, len(cp.entries))
	for i, e := range cp.entries {
		names[i] = e.name
	}
	return names
}

// Close releases open archives.
func (cp *Classpath) Close() {
	for _, c := range cp.closers {
		_ = c.Close()
	}
	cp.closers = nil
}

// Transpile converts TypeScript source to JavaScript.
func Transpile(source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader: api.LoaderTS,
		Target: api.ES2020,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, m := range result.Errors {
			if m.Location != nil {
				msgs[i] = fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text)
			} else {
				msgs[i] = m.Text
			}
		}
		return "", errors.New(strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}
