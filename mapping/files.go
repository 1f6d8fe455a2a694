package mapping

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

type mapFile struct {
	file *os.File
	gz   *gzip.Reader
	io.Reader
}

func (f *mapFile) Close() error {
	if f.gz != nil {
		f.gz.Close()
	}
	return f.file.Close()
}

// OpenMapFile opens a map file, decompressing it when the name ends in ".gz".
func OpenMapFile(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("opening map file %s: %w", path, err)
		}
		return &mapFile{file: file, gz: gz, Reader: gz}, nil
	}
	return &mapFile{file: file, Reader: bufio.NewReader(file)}, nil
}

// LoadFile reads the map file at path.
func LoadFile(path string, opts ...ReaderOption) (*SymbolTable, error) {
	reader, err := OpenMapFile(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return Load(reader, append([]ReaderOption{WithPath(path)}, opts...)...)
}

// LoadFiles reads several map files concurrently and returns their tables
// in the order the paths were given.
func LoadFiles(ctx context.Context, paths []string, opts ...ReaderOption) ([]*SymbolTable, error) {
	tables := make([]*SymbolTable, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			table, err := LoadFile(path, opts...)
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return tables, nil
}

// LoadChain loads the map files of a composite chain and composes them.
func LoadChain(ctx context.Context, paths []string, opts ...ReaderOption) (*SymbolTable, error) {
	tables, err := LoadFiles(ctx, paths, opts...)
	if err != nil {
		return nil, err
	}
	return Compose(Chain(tables))
}

// LoadChainManifest reads a chain manifest: one map-file path per line,
// '#' comments allowed. Relative paths are resolved against dir.
func LoadChainManifest(reader io.Reader, dir string) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if len(line) == 0 {
			continue
		}
		if !filepath.IsAbs(line) && dir != "" {
			line = filepath.Join(dir, line)
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}
