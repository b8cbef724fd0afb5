package main

import (
	"context"
	"errors"
	"testing"

	"github.com/viant/afs"
)

func newTestVisitor() *NodeResolutionVisitor {
	return &NodeResolutionVisitor{
		Name:       "importmap.json",
		Conditions: ConditionSet{"import", "browser", "default"},
		Mappings:   NewImportMapAccumulator(),
	}
}

func walkFixture(t *testing.T, dir string, visitor *NodeResolutionVisitor) (ImportMap, *Logger) {
	t.Helper()
	logger := newTestLogger()
	walker := NewNodeModuleWalker(dir, NewPackageReader(logger, nil), logger, afs.New())
	if err := walker.Walk(context.Background(), []*NodeResolutionVisitor{visitor}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return OptimizeImportMap(visitor.Mappings.ImportMap()), logger
}

func TestWalkNestedNodeModules(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"package.json":                              `{"name": "root", "dependencies": {"foo": "*", "bar": "*"}}`,
		"node_modules/foo/package.json":             `{"name": "foo", "main": "foo.js", "dependencies": {"bar": "*"}}`,
		"node_modules/foo/foo.js":                   "",
		"node_modules/bar/package.json":             `{"name": "bar", "main": "bar.js"}`,
		"node_modules/bar/bar.js":                   "",
		"node_modules/foo/node_modules/bar/package.json": `{"name": "bar", "main": "bar.js"}`,
		"node_modules/foo/node_modules/bar/bar.js":  "",
	})

	importMap, _ := walkFixture(t, dir, newTestVisitor())

	expectedImports := `{"bar":"./node_modules/bar/bar.js","bar/":"./node_modules/bar/","foo":"./node_modules/foo/foo.js","foo/":"./node_modules/foo/","root":"./index","root/":"./"}`
	if got := mustJSON(t, importMap.Imports); got != expectedImports {
		t.Errorf("Expected imports %s, got %s", expectedImports, got)
	}
	expectedScopes := `{"./node_modules/foo/":{"bar":"./node_modules/foo/node_modules/bar/bar.js","bar/":"./node_modules/foo/node_modules/bar/"},"./node_modules/foo/node_modules/bar/":{"bar/":"./node_modules/foo/node_modules/bar/"}}`
	if got := mustJSON(t, importMap.Scopes); got != expectedScopes {
		t.Errorf("Expected scopes %s, got %s", expectedScopes, got)
	}
}

func TestWalkScenarios(t *testing.T) {
	t.Run("should warn and continue when a dependency has no name", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json":                       `{"name": "app", "dependencies": {"nameless": "*"}}`,
			"node_modules/nameless/package.json": `{}`,
			"node_modules/nameless/index.js":     "",
		})
		importMap, logger := walkFixture(t, dir, newTestVisitor())
		if !logger.HasWarning(PackageNameMustBeAString) {
			t.Errorf("Expected %s warning, got %v", PackageNameMustBeAString, logger.Warnings())
		}
		if importMap.Imports["nameless"] != "./node_modules/nameless/index.js" {
			t.Errorf("Expected nameless mapping, got %s", mustJSON(t, importMap.Imports))
		}
	})

	t.Run("should use index.js when main is missing", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json":                      `{"name": "app", "dependencies": {"left-pad": "^1.0.0"}}`,
			"node_modules/left-pad/package.json": `{"name": "left-pad", "version": "1.3.0"}`,
			"node_modules/left-pad/index.js":     "",
		})
		importMap, _ := walkFixture(t, dir, newTestVisitor())
		if importMap.Imports["left-pad"] != "./node_modules/left-pad/index.js" {
			t.Errorf("Expected left-pad index.js, got %v", importMap.Imports)
		}
		if importMap.Imports["left-pad/"] != "./node_modules/left-pad/" {
			t.Errorf("Expected left-pad/ catch all, got %v", importMap.Imports)
		}
	})

	t.Run("should map exports without scopes when imported by the project", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json":                 `{"name": "app", "dependencies": {"foo": "*"}}`,
			"node_modules/foo/package.json": `{"name": "foo", "main": "main.js", "exports": {".": "./lib/foo.js", "./utils": "./lib/utils.js"}}`,
		})
		importMap, _ := walkFixture(t, dir, newTestVisitor())
		if importMap.Imports["foo"] != "./node_modules/foo/lib/foo.js" || importMap.Imports["foo/utils"] != "./node_modules/foo/lib/utils.js" {
			t.Errorf("Unexpected imports %v", importMap.Imports)
		}
		if _, ok := importMap.Imports["foo/"]; ok {
			t.Errorf("Expected no catch all mapping when exports is declared")
		}
		if len(importMap.Scopes) != 0 {
			t.Errorf("Expected no scopes, got %v", importMap.Scopes)
		}
	})

	t.Run("should map self import", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json": `{"name": "root"}`,
			"index.js":     "",
		})
		importMap, _ := walkFixture(t, dir, newTestVisitor())
		if got := mustJSON(t, importMap.Imports); got != `{"root":"./index.js","root/":"./"}` {
			t.Errorf("Unexpected imports %s", got)
		}
	})

	t.Run("should terminate on circular dependencies", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json":               `{"name": "root", "dependencies": {"a": "*", "b": "*"}}`,
			"node_modules/a/package.json": `{"name": "a", "dependencies": {"b": "*"}}`,
			"node_modules/a/index.js":     "",
			"node_modules/b/package.json": `{"name": "b", "dependencies": {"a": "*"}}`,
			"node_modules/b/index.js":     "",
		})
		importMap, _ := walkFixture(t, dir, newTestVisitor())
		if importMap.Imports["a"] != "./node_modules/a/index.js" || importMap.Imports["b"] != "./node_modules/b/index.js" {
			t.Errorf("Unexpected imports %v", importMap.Imports)
		}
		if len(importMap.Scopes) != 0 {
			t.Errorf("Expected no scopes, got %s", mustJSON(t, importMap.Scopes))
		}
	})

	t.Run("should scope hoisted diamond dependency under each importer", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json":               `{"name": "root", "dependencies": {"a": "*", "b": "*"}}`,
			"node_modules/a/package.json": `{"name": "a", "dependencies": {"c": "1"}}`,
			"node_modules/b/package.json": `{"name": "b", "dependencies": {"c": "1"}}`,
			"node_modules/c/package.json": `{"name": "c", "version": "1.0.0", "exports": "./c.js"}`,
		})
		importMap, _ := walkFixture(t, dir, newTestVisitor())
		for _, scope := range []string{"./node_modules/a/", "./node_modules/b/", "./node_modules/c/"} {
			if importMap.Scopes[scope]["c"] != "./node_modules/c/c.js" {
				t.Errorf("Expected c mapping in scope %s, got %s", scope, mustJSON(t, importMap.Scopes))
			}
		}
		if _, ok := importMap.Imports["c"]; ok {
			t.Errorf("Expected c to stay out of top level imports")
		}
	})

	t.Run("should scope main of hoisted dependency to its importer", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json":               `{"name": "root", "dependencies": {"a": "*"}}`,
			"node_modules/a/package.json": `{"name": "a", "dependencies": {"b": "*"}}`,
			"node_modules/b/package.json": `{"name": "b", "main": "b.js"}`,
			"node_modules/b/b.js":         "",
		})
		importMap, _ := walkFixture(t, dir, newTestVisitor())
		if importMap.Scopes["./node_modules/a/"]["b"] != "./node_modules/b/b.js" {
			t.Errorf("Expected b in a scope, got %s", mustJSON(t, importMap.Scopes))
		}
	})
}

func TestWalkDependencyKinds(t *testing.T) {
	files := map[string]string{
		"package.json": `{
			"name": "root",
			"dependencies": {"prod": "*"},
			"devDependencies": {"dev": "*", "prod": "*"},
			"optionalDependencies": {"missing-optional": "*"},
			"peerDependencies": {"missing-peer": "*", "missing-required-peer": "*"},
			"peerDependenciesMeta": {"missing-peer": {"optional": true}}
		}`,
		"node_modules/prod/package.json": `{"name": "prod"}`,
		"node_modules/dev/package.json":  `{"name": "dev"}`,
	}

	t.Run("should skip dev dependencies by default", func(t *testing.T) {
		dir := writeFixture(t, files)
		importMap, logger := walkFixture(t, dir, newTestVisitor())
		if _, ok := importMap.Imports["dev/"]; ok {
			t.Errorf("Expected dev dependency to be ignored")
		}
		if _, ok := importMap.Imports["prod/"]; !ok {
			t.Errorf("Expected prod dependency to be mapped")
		}
		warnings := logger.Warnings()
		if len(warnings) != 1 || warnings[0].Code != CannotFindPackage {
			t.Errorf("Expected only missing-required-peer warning, got %v", warnings)
		}
	})

	t.Run("should include dev dependencies when asked", func(t *testing.T) {
		dir := writeFixture(t, files)
		visitor := newTestVisitor()
		visitor.MappingsForDevDependencies = true
		importMap, _ := walkFixture(t, dir, visitor)
		if _, ok := importMap.Imports["dev/"]; !ok {
			t.Errorf("Expected dev dependency to be mapped, got %v", importMap.Imports)
		}
	})

	t.Run("should skip excluded packages", func(t *testing.T) {
		dir := writeFixture(t, files)
		visitor := newTestVisitor()
		visitor.PackageIncluded, _ = createPackageIncludedPredicate(nil, []string{"prod"})
		importMap, _ := walkFixture(t, dir, visitor)
		if _, ok := importMap.Imports["prod/"]; ok {
			t.Errorf("Expected prod to be excluded")
		}
		if _, ok := importMap.Imports["root/"]; !ok {
			t.Errorf("Expected project package to stay included")
		}
	})
}

func TestWalkFailures(t *testing.T) {
	t.Run("should fail without project package.json", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{"index.js": ""})
		logger := newTestLogger()
		walker := NewNodeModuleWalker(dir, NewPackageReader(logger, nil), logger, afs.New())
		err := walker.Walk(context.Background(), []*NodeResolutionVisitor{newTestVisitor()})
		if !errors.Is(err, ErrProjectPackageNotFound) {
			t.Errorf("Expected ErrProjectPackageNotFound, got %v", err)
		}
	})

	t.Run("should stop when project name is not a string", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{"package.json": `{"name": 42}`})
		importMap, logger := walkFixture(t, dir, newTestVisitor())
		if len(importMap.Imports) != 0 || !logger.HasWarning(PackageNameMustBeAString) {
			t.Errorf("Expected empty map and warning, got %v %v", importMap.Imports, logger.Warnings())
		}
	})

	t.Run("should skip dependency with invalid package.json", func(t *testing.T) {
		dir := writeFixture(t, map[string]string{
			"package.json":                    `{"name": "root", "dependencies": {"broken": "*", "ok": "*"}}`,
			"node_modules/broken/package.json": `{"name": `,
			"node_modules/ok/package.json":     `{"name": "ok"}`,
		})
		importMap, _ := walkFixture(t, dir, newTestVisitor())
		if _, ok := importMap.Imports["broken/"]; ok {
			t.Errorf("Expected broken package to be skipped")
		}
		if _, ok := importMap.Imports["ok/"]; !ok {
			t.Errorf("Expected ok package to be mapped")
		}
	})
}

func TestWalkImportMapField(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"package.json":                  `{"name": "root", "dependencies": {"foo": "*"}, "importmap": "./project.importmap"}`,
		"project.importmap":             `{"imports": {"polyfill": "./polyfills/index.js"}}`,
		"node_modules/foo/package.json": `{"name": "foo", "exports": {".": "./index.js"}, "importmap": {"imports": {"./": "./", "#internal": "./internal.js"}}}`,
	})
	importMap, _ := walkFixture(t, dir, newTestVisitor())

	if importMap.Imports["polyfill"] != "./polyfills/index.js" {
		t.Errorf("Expected project importmap file to be used, got %v", importMap.Imports)
	}
	scope := importMap.Scopes["./node_modules/foo/"]
	expected := `{"#internal":"./node_modules/foo/internal.js","./":"./node_modules/foo/","./node_modules/foo/":"./node_modules/foo/","foo/":"./node_modules/foo/"}`
	if got := mustJSON(t, scope); got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
}

func TestWalkPackageImportsField(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"package.json":                  `{"name": "root", "dependencies": {"foo": "*"}, "imports": {"#config": "./src/config.js"}}`,
		"node_modules/foo/package.json": `{"name": "foo", "imports": {"#dep": {"browser": "./dep.browser.js", "default": "./dep.js"}}}`,
	})
	importMap, _ := walkFixture(t, dir, newTestVisitor())
	if importMap.Imports["#config"] != "./src/config.js" {
		t.Errorf("Expected #config at top level, got %v", importMap.Imports)
	}
	if importMap.Scopes["./node_modules/foo/"]["#dep"] != "./node_modules/foo/dep.browser.js" {
		t.Errorf("Expected #dep in foo scope, got %s", mustJSON(t, importMap.Scopes))
	}
}

func TestWalkIsIdempotent(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"package.json":                  `{"name": "root", "dependencies": {"a": "*", "b": "*"}}`,
		"node_modules/a/package.json":   `{"name": "a", "dependencies": {"c": "*"}}`,
		"node_modules/b/package.json":   `{"name": "b", "dependencies": {"c": "*"}}`,
		"node_modules/c/package.json":   `{"name": "c"}`,
		"node_modules/b/node_modules/c/package.json": `{"name": "c"}`,
	})
	first, _ := walkFixture(t, dir, newTestVisitor())
	second, _ := walkFixture(t, dir, newTestVisitor())
	firstBytes, _ := first.Bytes()
	secondBytes, _ := second.Bytes()
	if string(firstBytes) != string(secondBytes) {
		t.Errorf("Expected identical output, got:\n%s\n%s", firstBytes, secondBytes)
	}
}

func TestGetNodeModuleCandidates(t *testing.T) {
	walker := NewNodeModuleWalker("/project/", nil, newTestLogger(), nil)
	cases := []struct {
		packageFile string
		expected    string
	}{
		{"/project/package.json", `["node_modules/"]`},
		{"/project/node_modules/foo/package.json", `["node_modules/foo/node_modules/","node_modules/"]`},
		{"/project/node_modules/foo/node_modules/@a/b/package.json", `["node_modules/foo/node_modules/@a/b/node_modules/","node_modules/foo/node_modules/","node_modules/"]`},
	}
	for _, c := range cases {
		if got := mustJSON(t, walker.getNodeModuleCandidates(c.packageFile)); got != c.expected {
			t.Errorf("Expected %s for %s, got %s", c.expected, c.packageFile, got)
		}
	}
}

func TestComputePackageDerivedInfoMoved(t *testing.T) {
	walker := NewNodeModuleWalker("/project/", nil, newTestLogger(), nil)
	root := &packageInfo{pkg: &PackageJson{Path: "/project/package.json"}, name: "root"}
	a := &packageInfo{pkg: &PackageJson{Path: "/project/node_modules/a/package.json"}, name: "a"}

	cases := []struct {
		name     string
		info     packageInfo
		importer *packageInfo
		expected bool
	}{
		{"project itself", *root, nil, false},
		{"direct dependency of the project", packageInfo{pkg: &PackageJson{Path: "/project/node_modules/b/package.json"}, name: "b"}, root, false},
		{"dependency nested under its importer", packageInfo{pkg: &PackageJson{Path: "/project/node_modules/a/node_modules/b/package.json"}, name: "b"}, a, false},
		{"dependency hoisted above its importer", packageInfo{pkg: &PackageJson{Path: "/project/node_modules/b/package.json"}, name: "b"}, a, true},
	}
	for _, c := range cases {
		t.Run("should detect moved package for "+c.name, func(t *testing.T) {
			derived := walker.computePackageDerivedInfo(c.info, c.importer)
			if got := derived.moved(); got != c.expected {
				t.Errorf("Expected moved %v, got %v", c.expected, got)
			}
		})
	}
}
