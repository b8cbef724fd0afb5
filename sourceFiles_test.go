package main

import (
	"context"
	"testing"
)

func runSourceFiles(t *testing.T, files map[string]string, importMap ImportMap, options SourceFilesOptions) (ImportMap, *Logger) {
	t.Helper()
	dir := writeFixture(t, files)
	logger := newTestLogger()
	if options.Conditions == nil {
		options.Conditions = packageConditions(nil, options.Runtime, "esm", nil)
	}
	result, err := visitSourceFiles(context.Background(), dir, importMap, options, NewPackageReader(logger, nil), logger)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return result, logger
}

func TestVisitSourceFilesRemoveUnusedMappings(t *testing.T) {
	files := map[string]string{
		"package.json":                  `{"name": "app", "main": "index.js"}`,
		"index.js":                      `import foo from "foo"`,
		"node_modules/foo/package.json": `{"name": "foo"}`,
		"node_modules/foo/index.js":     `import bar from "bar"`,
		"node_modules/bar/package.json": `{"name": "bar"}`,
		"node_modules/bar/index.js":     ``,
	}
	importMap := ImportMap{
		Imports: map[string]string{
			"app/": "./",
			"foo":  "./node_modules/foo/index.js",
			"foo/": "./node_modules/foo/",
			"bar":  "./node_modules/bar/index.js",
		},
		Scopes: map[string]map[string]string{
			"./node_modules/foo/": {
				"bar": "./node_modules/bar/index.js",
			},
		},
	}

	t.Run("should keep only the mappings used from the entry point", func(t *testing.T) {
		result, logger := runSourceFiles(t, files, importMap, SourceFilesOptions{RemoveUnusedMappings: true})
		expected := `{"imports":{"foo":"./node_modules/foo/index.js"},"scopes":{"./node_modules/foo/":{"bar":"./node_modules/bar/index.js"}}}`
		if got := mustJSON(t, result); got != expected {
			t.Errorf("Expected %s, got %s", expected, got)
		}
		if len(logger.Warnings()) != 0 {
			t.Errorf("Expected no warnings, got %v", logger.Warnings())
		}
	})

	t.Run("should keep every mapping by default", func(t *testing.T) {
		result, _ := runSourceFiles(t, files, importMap, SourceFilesOptions{})
		if got, expected := mustJSON(t, result), mustJSON(t, importMap); got != expected {
			t.Errorf("Expected %s, got %s", expected, got)
		}
	})

	t.Run("should use configured entry points", func(t *testing.T) {
		result, _ := runSourceFiles(t, files, importMap, SourceFilesOptions{
			EntryPoints:          []string{"./node_modules/bar/index.js"},
			RemoveUnusedMappings: true,
		})
		if len(result.Imports) != 0 || len(result.Scopes) != 0 {
			t.Errorf("Expected empty import map, got %s", mustJSON(t, result))
		}
	})
}

func TestVisitSourceFilesBareSpecifier(t *testing.T) {
	files := map[string]string{
		"package.json":                  `{"name": "app", "main": "index.js"}`,
		"index.js":                      `import "lib.js"`,
		"lib.js":                        `import "foo"`,
		"node_modules/foo/package.json": `{"name": "foo"}`,
		"node_modules/foo/index.js":     `import "helper.js"`,
		"node_modules/foo/helper.js":    ``,
	}
	importMap := ImportMap{
		Imports: map[string]string{"foo": "./node_modules/foo/index.js"},
		Scopes:  map[string]map[string]string{},
	}

	t.Run("should warn without bare specifier automapping", func(t *testing.T) {
		result, logger := runSourceFiles(t, files, importMap, SourceFilesOptions{})
		if !logger.HasWarning(ImportResolutionFailed) {
			t.Errorf("Expected %s warning, got %v", ImportResolutionFailed, logger.Warnings())
		}
		if _, ok := result.Imports["lib.js"]; ok {
			t.Errorf("Expected no automapping, got %s", mustJSON(t, result))
		}
	})

	t.Run("should leave the import unresolved without automapping", func(t *testing.T) {
		result, _ := runSourceFiles(t, files, importMap, SourceFilesOptions{RemoveUnusedMappings: true})
		if len(result.Imports) != 0 || len(result.Scopes) != 0 {
			t.Errorf("Expected empty import map, got %s", mustJSON(t, result))
		}
	})

	t.Run("should add mappings scoped to the owning package", func(t *testing.T) {
		result, logger := runSourceFiles(t, files, importMap, SourceFilesOptions{BareSpecifierAutomapping: true})
		expected := `{"imports":{"foo":"./node_modules/foo/index.js","lib.js":"./lib.js"},"scopes":{"./node_modules/foo/":{"helper.js":"./node_modules/foo/helper.js"}}}`
		if got := mustJSON(t, result); got != expected {
			t.Errorf("Expected %s, got %s", expected, got)
		}
		if len(logger.Warnings()) != 0 {
			t.Errorf("Expected no warnings, got %v", logger.Warnings())
		}
	})

	t.Run("should warn when nothing matches", func(t *testing.T) {
		_, logger := runSourceFiles(t, map[string]string{
			"package.json": `{"name": "app", "main": "index.js"}`,
			"index.js":     `import "not-installed"`,
		}, NewImportMap(), SourceFilesOptions{BareSpecifierAutomapping: true})
		if !logger.HasWarning(ImportResolutionFailed) {
			t.Errorf("Expected %s warning, got %v", ImportResolutionFailed, logger.Warnings())
		}
	})
}

func TestVisitSourceFilesExtensionless(t *testing.T) {
	files := map[string]string{
		"package.json": `{"name": "app", "main": "index.js"}`,
		"index.js":     `import "./src/util"`,
		"src/util.js":  ``,
	}

	t.Run("should report a missing file without magic extensions", func(t *testing.T) {
		_, logger := runSourceFiles(t, files, NewImportMap(), SourceFilesOptions{})
		if !logger.HasWarning(FileNotFound) {
			t.Errorf("Expected %s warning, got %v", FileNotFound, logger.Warnings())
		}
	})

	t.Run("should warn when magic extension is needed", func(t *testing.T) {
		result, logger := runSourceFiles(t, files, NewImportMap(), SourceFilesOptions{MagicExtensions: []string{".js"}})
		if !logger.HasWarning(FileNotFound) {
			t.Errorf("Expected %s warning, got %v", FileNotFound, logger.Warnings())
		}
		if len(result.Imports) != 0 {
			t.Errorf("Expected no mapping, got %s", mustJSON(t, result))
		}
	})

	t.Run("should add a mapping with extensionless automapping", func(t *testing.T) {
		result, logger := runSourceFiles(t, files, NewImportMap(), SourceFilesOptions{
			MagicExtensions:          []string{".js"},
			ExtensionlessAutomapping: true,
		})
		if got := result.Imports["./src/util"]; got != "./src/util.js" {
			t.Errorf("Expected ./src/util.js, got %q", got)
		}
		if len(logger.Warnings()) != 0 {
			t.Errorf("Expected no warnings, got %v", logger.Warnings())
		}
	})

	t.Run("should accept silently when exports has a wildcard", func(t *testing.T) {
		result, logger := runSourceFiles(t, map[string]string{
			"package.json": `{"name": "app", "exports": {".": "./index.js", "./*": "./*"}}`,
			"index.js":     `import "./src/util"`,
			"src/util.js":  ``,
		}, NewImportMap(), SourceFilesOptions{MagicExtensions: []string{".js"}})
		if len(logger.Warnings()) != 0 {
			t.Errorf("Expected no warnings, got %v", logger.Warnings())
		}
		if got := result.Imports["./src/util"]; got != "./src/util.js" {
			t.Errorf("Expected ./src/util.js, got %q", got)
		}
	})

	t.Run("should map extensionless subpaths of a dependency with wildcard exports", func(t *testing.T) {
		importMap := ImportMap{
			Imports: map[string]string{"foo/": "./node_modules/foo/"},
			Scopes:  map[string]map[string]string{},
		}
		result, logger := runSourceFiles(t, map[string]string{
			"package.json":                  `{"name": "app", "main": "index.js"}`,
			"index.js":                      `import "foo/bar"`,
			"node_modules/foo/package.json": `{"name": "foo", "exports": {"./*": "./*"}}`,
			"node_modules/foo/bar.js":       ``,
		}, importMap, SourceFilesOptions{MagicExtensions: []string{".js"}, RemoveUnusedMappings: true})
		expected := `{"foo/":"./node_modules/foo/","foo/bar":"./node_modules/foo/bar.js"}`
		if got := mustJSON(t, result.Imports); got != expected {
			t.Errorf("Expected %s, got %s", expected, got)
		}
		if len(logger.Warnings()) != 0 {
			t.Errorf("Expected no warnings, got %v", logger.Warnings())
		}
	})

	t.Run("should not visit a file found only with magic extensions", func(t *testing.T) {
		importMap := ImportMap{
			Imports: map[string]string{"bar": "./node_modules/bar/index.js"},
			Scopes:  map[string]map[string]string{},
		}
		result, _ := runSourceFiles(t, map[string]string{
			"package.json":                  `{"name": "app", "main": "index.js"}`,
			"index.js":                      `import "./src/util"`,
			"src/util.js":                   `import "bar"`,
			"node_modules/bar/package.json": `{"name": "bar"}`,
			"node_modules/bar/index.js":     ``,
		}, importMap, SourceFilesOptions{MagicExtensions: []string{".js"}, RemoveUnusedMappings: true})
		if len(result.Imports) != 0 {
			t.Errorf("Expected empty imports, got %s", mustJSON(t, result))
		}
	})

	t.Run("should prefer the importer extension", func(t *testing.T) {
		result, _ := runSourceFiles(t, map[string]string{
			"package.json": `{"name": "app"}`,
			"main.ts":      `import "./util"`,
			"util.js":      ``,
			"util.ts":      ``,
		}, NewImportMap(), SourceFilesOptions{
			EntryPoints:              []string{"./main.ts"},
			MagicExtensions:          []string{".js", ".ts"},
			ExtensionlessAutomapping: true,
		})
		if got := result.Imports["./util"]; got != "./util.ts" {
			t.Errorf("Expected ./util.ts, got %q", got)
		}
	})
}

func TestVisitSourceFilesNodeBuiltins(t *testing.T) {
	files := map[string]string{
		"package.json": `{"name": "app", "main": "index.js"}`,
		"index.js":     "import fs from \"node:fs\"\nimport { join } from \"path\"\nimport { readFile } from \"fs/promises\"",
	}

	t.Run("should skip builtins for node runtime", func(t *testing.T) {
		_, logger := runSourceFiles(t, files, NewImportMap(), SourceFilesOptions{Runtime: "node"})
		if len(logger.Warnings()) != 0 {
			t.Errorf("Expected no warnings, got %v", logger.Warnings())
		}
	})

	t.Run("should suggest node runtime for browser", func(t *testing.T) {
		_, logger := runSourceFiles(t, files, NewImportMap(), SourceFilesOptions{Runtime: "browser"})
		warnings := logger.Warnings()
		if len(warnings) != 3 {
			t.Fatalf("Expected 3 warnings, got %d", len(warnings))
		}
		for _, w := range warnings {
			found := false
			for _, d := range w.Details {
				if d.Value == `use runtime: "node"` {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected node runtime suggestion, got %s", w.String())
			}
		}
	})
}

func TestVisitSourceFilesGraph(t *testing.T) {
	t.Run("should stop on circular imports", func(t *testing.T) {
		_, logger := runSourceFiles(t, map[string]string{
			"package.json": `{"name": "app", "main": "a.js"}`,
			"a.js":         `import "./b.js"`,
			"b.js":         `export * from "./a.js"; const c = () => import("./c.js")`,
			"c.js":         `import "./a.js"`,
		}, NewImportMap(), SourceFilesOptions{})
		if len(logger.Warnings()) != 0 {
			t.Errorf("Expected no warnings, got %v", logger.Warnings())
		}
	})

	t.Run("should report a missing entry point", func(t *testing.T) {
		_, logger := runSourceFiles(t, map[string]string{
			"package.json": `{"name": "app"}`,
		}, NewImportMap(), SourceFilesOptions{EntryPoints: []string{"./missing.js"}})
		if !logger.HasWarning(FileNotFound) {
			t.Errorf("Expected %s warning, got %v", FileNotFound, logger.Warnings())
		}
	})

	t.Run("should report an unresolvable project entry point", func(t *testing.T) {
		result, logger := runSourceFiles(t, map[string]string{
			"package.json": `{"name": "app", "main": "missing.js"}`,
		}, NewImportMap(), SourceFilesOptions{RemoveUnusedMappings: true})
		if !logger.HasWarning(ProjectEntryPointResolutionFailed) {
			t.Errorf("Expected %s warning, got %v", ProjectEntryPointResolutionFailed, logger.Warnings())
		}
		if len(result.Imports) != 0 {
			t.Errorf("Expected empty import map, got %s", mustJSON(t, result))
		}
	})
}
