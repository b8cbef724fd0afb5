package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SourceFilesOptions configures the scan of project source files.
type SourceFilesOptions struct {
	// EntryPoints are relative to the project directory. When empty the
	// project package.json entry is used.
	EntryPoints              []string
	Conditions               ConditionSet
	Runtime                  string
	MagicExtensions          []string
	BareSpecifierAutomapping bool
	ExtensionlessAutomapping bool
	RemoveUnusedMappings     bool
}

type mappingKey struct {
	scope string
	from  string
}

type sourceFilesVisitor struct {
	projectDir   string
	options      SourceFilesOptions
	reader       *PackageReader
	logger       *Logger
	importMap    *NormalizedImportMap
	automappings *ImportMapAccumulator

	mu      sync.Mutex
	visited map[string]struct{}
	used    map[mappingKey]struct{}
}

// visitSourceFiles follows import specifiers from the entry points. Each one
// is resolved against importMap, problems are reported, automappings are
// added. With RemoveUnusedMappings only the mappings used along the way are
// kept.
func visitSourceFiles(ctx context.Context, projectDir string, importMap ImportMap, options SourceFilesOptions, reader *PackageReader, logger *Logger) (ImportMap, error) {
	v := &sourceFilesVisitor{
		projectDir:   projectDir,
		options:      options,
		reader:       reader,
		logger:       logger,
		importMap:    NormalizeImportMap(importMap, projectDir),
		automappings: NewImportMapAccumulator(),
		visited:      map[string]struct{}{},
		used:         map[mappingKey]struct{}{},
	}

	entryPoints := options.EntryPoints
	if len(entryPoints) == 0 {
		entryPoint := v.projectEntryPoint()
		if entryPoint == "" {
			return importMap, nil
		}
		entryPoints = []string{entryPoint}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entryPoint := range entryPoints {
		file := resolvePath(entryPoint, projectDir, projectDir)
		resolved := resolveFile(file, v.resolveOptions(file))
		if !resolved.Found {
			logger.Warn(importResolutionFailedWarning(importResolutionFailure{
				specifier:      entryPoint,
				importedBy:     "entryPoints",
				reason:         "file not found on filesystem",
				resolvedTarget: file,
			}))
			continue
		}
		g.Go(func() error {
			return v.visitFile(gctx, resolved.Path)
		})
	}
	if err := g.Wait(); err != nil {
		return importMap, err
	}

	logger.Debug("source files visited", "count", v.visitedCount())
	result := importMap
	if options.RemoveUnusedMappings {
		result = v.usedMappings(importMap)
	}
	return ComposeImportMaps(result, v.automappings.ImportMap()), nil
}

func (v *sourceFilesVisitor) projectEntryPoint() string {
	packageFile := v.projectDir + "package.json"
	pkg, err := v.reader.Read(packageFile)
	if err != nil {
		v.logger.Warn(projectEntryPointResolutionFailedWarning(packageFile, err.Error()))
		return ""
	}
	return resolveProjectEntryPoint(pkg, v.projectDir, v.options.Conditions, v.logger)
}

func (v *sourceFilesVisitor) resolveOptions(importer string) ResolveFileOptions {
	if len(v.options.MagicExtensions) == 0 {
		return ResolveFileOptions{}
	}
	return ResolveFileOptions{
		MagicDirectoryIndex: true,
		MagicExtensions:     magicExtensionsForImporter(importer, v.options.MagicExtensions),
	}
}

func (v *sourceFilesVisitor) markVisited(file string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.visited[file]; ok {
		return false
	}
	v.visited[file] = struct{}{}
	return true
}

func (v *sourceFilesVisitor) visitedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.visited)
}

func (v *sourceFilesVisitor) markUsed(scope string, from string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.used[mappingKey{scope: scope, from: from}] = struct{}{}
}

func (v *sourceFilesVisitor) isUsed(scope string, from string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.used[mappingKey{scope: scope, from: from}]
	return ok
}

func (v *sourceFilesVisitor) usedMappings(importMap ImportMap) ImportMap {
	result := NewImportMap()
	for from, to := range importMap.Imports {
		if v.isUsed("", from) {
			result.Imports[from] = to
		}
	}
	for scope, mappings := range importMap.Scopes {
		for from, to := range mappings {
			if !v.isUsed(scope, from) {
				continue
			}
			if result.Scopes[scope] == nil {
				result.Scopes[scope] = map[string]string{}
			}
			result.Scopes[scope][from] = to
		}
	}
	return result
}

func (v *sourceFilesVisitor) visitFile(ctx context.Context, file string) error {
	if !hasParsableExtension(file) || !v.markVisited(file) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	specifiers, err := ParseSpecifiersFromFile(file)
	if err != nil {
		v.logger.Warn(fileParseFailedWarning(file, err))
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	seen := map[string]struct{}{}
	for _, specifier := range specifiers {
		specifier := specifier
		if _, ok := seen[specifier.Value]; ok {
			continue
		}
		seen[specifier.Value] = struct{}{}
		g.Go(func() error {
			return v.visitSpecifier(ctx, specifier, file)
		})
	}
	return g.Wait()
}

func (v *sourceFilesVisitor) visitSpecifier(ctx context.Context, specifier Specifier, importer string) error {
	value := specifier.Value
	if v.options.Runtime == "node" && isNodeBuiltin(value) {
		return nil
	}
	importedBy := fmt.Sprintf("%s:%d:%d", fileDetail(importer), specifier.Line, specifier.Column)

	var used *mappingKey
	resolved, err := v.importMap.Resolve(value, importer, func(scope string, from string) {
		used = &mappingKey{scope: scope, from: from}
	})
	if err != nil {
		return v.visitBareSpecifier(ctx, value, importer, importedBy)
	}
	if used != nil {
		v.markUsed(used.scope, used.from)
	}
	if hasScheme(resolved) {
		if strings.HasPrefix(resolved, "node:") {
			v.logger.Warn(importResolutionFailedWarning(importResolutionFailure{
				specifier:    value,
				importedBy:   importedBy,
				reason:       "node builtin modules are only available for node runtime",
				suggestions:  []string{`use runtime: "node"`},
				gotBareError: true,
			}))
		}
		// remote url, nothing to check on the filesystem
		return nil
	}

	file := resolveFile(resolved, v.resolveOptions(importer))
	if !file.Found {
		v.logger.Warn(importResolutionFailedWarning(importResolutionFailure{
			specifier:      value,
			importedBy:     importedBy,
			reason:         "file not found on filesystem",
			resolvedTarget: resolved,
		}))
		return nil
	}
	if file.MagicExtension != "" || file.MagicDirectoryIndex {
		if !v.onMagicResolution(value, importer, importedBy, resolved, file) {
			return nil
		}
	}
	return v.visitFile(ctx, file.Path)
}

// automappingScope is the scope of the package owning importer, "" for the
// project itself.
func (v *sourceFilesVisitor) automappingScope(importer string) string {
	packageDir := packageDirectoryFromPath(importer)
	if packageDir == "" {
		return ""
	}
	return toProjectRelative(packageDir, v.projectDir)
}

func formatMapping(scope string, from string, to string) string {
	if scope == "" {
		return fmt.Sprintf("%q: %q", from, to)
	}
	return fmt.Sprintf("%q: { %q: %q }", scope, from, to)
}

func (v *sourceFilesVisitor) visitBareSpecifier(ctx context.Context, specifier string, importer string, importedBy string) error {
	var suggestions []string
	if v.options.Runtime != "node" && isNodeBuiltin(specifier) {
		suggestions = append(suggestions, `use runtime: "node"`)
	}

	candidate := resolvePath(specifier, importer, v.projectDir)
	file := resolveFile(candidate, v.resolveOptions(importer))
	if !file.Found {
		v.logger.Warn(importResolutionFailedWarning(importResolutionFailure{
			specifier:    specifier,
			importedBy:   importedBy,
			reason:       "there is no mapping for this bare specifier",
			suggestions:  suggestions,
			gotBareError: true,
		}))
		return nil
	}

	scope := v.automappingScope(importer)
	to := toProjectRelative(file.Path, v.projectDir)
	if !v.options.BareSpecifierAutomapping {
		relative := relativePath(file.Path, dirOf(importer))
		if !strings.HasPrefix(relative, "../") {
			relative = "./" + relative
		}
		suggestions = append(suggestions,
			fmt.Sprintf("update import specifier to %q", relative),
			fmt.Sprintf("or add mapping %s", formatMapping(scope, specifier, to)),
		)
		v.logger.Warn(importResolutionFailedWarning(importResolutionFailure{
			specifier:    specifier,
			importedBy:   importedBy,
			reason:       "there is no mapping for this bare specifier",
			suggestions:  suggestions,
			gotBareError: true,
		}))
		return nil
	}

	v.automappings.Add(scope, specifier, to)
	v.logger.DebugWarning(automappingWarning(BareSpecifierAutomapping, specifier, importedBy,
		formatMapping(scope, specifier, to), "bare specifier matches a file relative to the importer"))
	return v.visitFile(ctx, file.Path)
}

// onMagicResolution reports false when the import stays unresolved at runtime.
func (v *sourceFilesVisitor) onMagicResolution(specifier string, importer string, importedBy string, resolved string, file ResolvedFile) bool {
	scope := v.automappingScope(importer)
	from := specifier
	if isRelativeSpecifier(specifier) {
		from = toProjectRelative(resolvePath(specifier, importer, v.projectDir), v.projectDir)
	}
	to := toProjectRelative(file.Path, v.projectDir)

	if v.options.ExtensionlessAutomapping {
		v.automappings.Add(scope, from, to)
		v.logger.DebugWarning(automappingWarning(ExtensionlessAutomapping, specifier, importedBy,
			formatMapping(scope, from, to), "file found with magic resolution"))
		return true
	}
	if v.exportsHaveWildcard(resolved) {
		v.automappings.Add(scope, from, to)
		v.logger.DebugWarning(automappingWarning(ExtensionlessAutomapping, specifier, importedBy,
			formatMapping(scope, from, to), "package exports expect extensionless subpaths"))
		return true
	}
	v.logger.Warn(importResolutionFailedWarning(importResolutionFailure{
		specifier:      specifier,
		importedBy:     importedBy,
		reason:         "file found with magic resolution, it would not be found at runtime",
		resolvedTarget: resolved,
		suggestions: []string{
			fmt.Sprintf("update import specifier to target %q", fileDetail(file.Path)),
			"or use extensionlessAutomapping: true",
		},
	}))
	return false
}

// exportsHaveWildcard tells if the package owning p declares "exports" keys
// with "*", such a package expects extensionless subpaths.
func (v *sourceFilesVisitor) exportsHaveWildcard(p string) bool {
	packageDir := packageDirectoryFromPath(p)
	if packageDir == "" {
		packageDir = v.projectDir
	}
	pkg, err := v.reader.Read(packageDir + "package.json")
	if err != nil {
		return false
	}
	exports, ok := asObject(pkg.Object["exports"])
	if !ok {
		return false
	}
	for key := range exports {
		if strings.Contains(key, "*") {
			return true
		}
	}
	return false
}
