package main

import (
	"os"
	"path/filepath"
)

// Extensions of files scanned for import specifiers.
var parsableExts = map[string]struct{}{
	".js":  {},
	".jsx": {},
	".ts":  {},
	".tsx": {},
	".mjs": {},
	".cjs": {},
}

func hasParsableExtension(name string) bool {
	_, ok := parsableExts[filepath.Ext(name)]
	return ok
}

// Extensions tried for package entry files, in node order.
var packageEntryExtensions = []string{".js", ".json", ".node"}

type ResolveFileOptions struct {
	MagicDirectoryIndex bool
	MagicExtensions     []string
}

type ResolvedFile struct {
	Found               bool
	Path                string
	MagicExtension      string
	MagicDirectoryIndex bool
}

// resolveFile finds the file behind path. A directory resolves to its index
// file when MagicDirectoryIndex is set, an extensionless path is probed
// with each of MagicExtensions in order.
func resolveFile(path string, options ResolveFileOptions) ResolvedFile {
	stat, err := os.Stat(DenormalizePathForOS(path))
	if err == nil {
		if stat.Mode().IsRegular() {
			return ResolvedFile{Found: true, Path: path}
		}
		if stat.IsDir() {
			if !options.MagicDirectoryIndex {
				return ResolvedFile{Found: false, Path: path}
			}
			indexFile := ensureTrailingSlash(path) + "index"
			result := resolveFile(indexFile, ResolveFileOptions{
				MagicDirectoryIndex: false,
				MagicExtensions:     options.MagicExtensions,
			})
			result.MagicDirectoryIndex = true
			return result
		}
		return ResolvedFile{Found: false, Path: path}
	}

	if len(options.MagicExtensions) == 0 || hasExtension(path) {
		return ResolvedFile{Found: false, Path: path}
	}
	for _, ext := range options.MagicExtensions {
		candidate := path + ext
		if stat, err := os.Stat(DenormalizePathForOS(candidate)); err == nil && stat.Mode().IsRegular() {
			return ResolvedFile{Found: true, Path: candidate, MagicExtension: ext}
		}
	}
	return ResolvedFile{Found: false, Path: path}
}

// magicExtensionsForImporter moves the importer extension to the front so
// that a .ts file prefers .ts siblings over .js ones.
func magicExtensionsForImporter(importer string, magicExtensions []string) []string {
	importerExt := filepath.Ext(importer)
	if importerExt == "" {
		return magicExtensions
	}
	result := make([]string, 0, len(magicExtensions)+1)
	result = append(result, importerExt)
	for _, ext := range magicExtensions {
		if ext != importerExt {
			result = append(result, ext)
		}
	}
	return result
}
