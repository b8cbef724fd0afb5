package main

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/viant/afs"
)

// readPackageImportMapField returns the import map a package declares in its
// "importmap" field. Addresses are relative to the package.json.
func readPackageImportMapField(ctx context.Context, fs afs.Service, pkg *PackageJson, logger *Logger) ImportMap {
	value, declared := pkg.Object["importmap"]
	if !declared || value == nil {
		return NewImportMap()
	}

	switch typed := value.(type) {
	case string:
		importMapFile := typed
		if !strings.HasPrefix(importMapFile, "/") {
			importMapFile = path.Join(pkg.Dir(), importMapFile)
		}
		exists, err := fs.Exists(ctx, importMapFile)
		if err != nil || !exists {
			logger.Warn(packageImportMapNotFoundWarning(importMapFile, pkg.Path))
			return NewImportMap()
		}
		content, err := fs.DownloadWithURL(ctx, importMapFile)
		if err != nil {
			logger.Warn(fileParseFailedWarning(importMapFile, err))
			return NewImportMap()
		}
		var importMap ImportMap
		if err := json.Unmarshal(jsonc.ToJSON(content), &importMap); err != nil {
			logger.Warn(fileParseFailedWarning(importMapFile, err))
			return NewImportMap()
		}
		return moveImportMap(importMap, importMapFile, pkg.Path)
	case map[string]interface{}:
		importMap, err := importMapFromObject(typed)
		if err != nil {
			logger.Warn(packageImportMapUnexpectedWarning(value, pkg.Path))
			return NewImportMap()
		}
		return importMap
	}
	logger.Warn(packageImportMapUnexpectedWarning(value, pkg.Path))
	return NewImportMap()
}

func importMapFromObject(object map[string]interface{}) (ImportMap, error) {
	data, err := json.Marshal(object)
	if err != nil {
		return ImportMap{}, err
	}
	var importMap ImportMap
	if err := json.Unmarshal(data, &importMap); err != nil {
		return ImportMap{}, err
	}
	return importMap.Clone(), nil
}

// moveImportMap rewrites an import map written next to fromFile so that it
// can be used next to toFile.
func moveImportMap(importMap ImportMap, fromFile string, toFile string) ImportMap {
	toDir := dirOf(toFile)
	moveKey := func(key string) string {
		if strings.HasPrefix(key, "./") || strings.HasPrefix(key, "../") {
			return moveMappingValue(key, fromFile, toDir)
		}
		return key
	}
	moveMappings := func(mappings map[string]string) map[string]string {
		moved := make(map[string]string, len(mappings))
		for from, to := range mappings {
			moved[moveKey(from)] = moveMappingValue(to, fromFile, toDir)
		}
		return moved
	}

	result := NewImportMap()
	result.Imports = moveMappings(importMap.Imports)
	for scope, mappings := range importMap.Scopes {
		result.Scopes[moveMappingValue(scope, fromFile, toDir)] = moveMappings(mappings)
	}
	return result
}
