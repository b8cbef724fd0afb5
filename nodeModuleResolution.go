package main

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"
)

// ErrProjectPackageNotFound aborts a run without a readable project package.json.
var ErrProjectPackageNotFound = errors.New("PROJECT_PACKAGE_FILE_NOT_FOUND: Cannot find project package.json file")

type ExportsFieldWarningConfig struct {
	Dependencies    bool `json:"dependencies" yaml:"dependencies"`
	DevDependencies bool `json:"devDependencies" yaml:"devDependencies"`
}

// NodeResolutionVisitor receives the mappings of one import map file.
type NodeResolutionVisitor struct {
	Name                       string
	Conditions                 ConditionSet
	MappingsForDevDependencies bool
	// PackageIncluded filters dependencies, the project package is always visited.
	PackageIncluded     func(name string, version string) bool
	ExportsFieldWarning ExportsFieldWarningConfig
	BrowserFieldWarning Severity
	Mappings            *ImportMapAccumulator
}

func (v *NodeResolutionVisitor) entrySeverity(isDevDependency bool) entryFieldSeverity {
	preferExports := v.ExportsFieldWarning.Dependencies
	if isDevDependency {
		preferExports = v.ExportsFieldWarning.DevDependencies
	}
	browser := v.BrowserFieldWarning
	if browser == "" {
		browser = SeverityWarn
	}
	return entryFieldSeverity{preferExports: severityFromBool(preferExports), browser: browser}
}

type packageInfo struct {
	pkg  *PackageJson
	name string
}

type dependency struct {
	name            string
	versionPattern  string
	isOptional      bool
	isDevDependency bool
}

type dependencyLookup struct {
	pkg        *PackageJson
	candidates []string
}

type packageDerivedInfo struct {
	packageIsRoot            bool
	importerIsRoot           bool
	importerRelative         string
	packageDirectoryRelative string
	packageDirectoryExpected string
	packageDirectoryActual   string
}

// moved tells if the package manager placed the package somewhere else than
// the importer's own node_modules.
func (d packageDerivedInfo) moved() bool {
	return !d.packageIsRoot && d.packageDirectoryActual != d.packageDirectoryExpected
}

// NodeModuleWalker visits the project package and, recursively, every
// dependency it can locate in node_modules.
type NodeModuleWalker struct {
	projectDir         string
	projectPackageFile string
	reader             *PackageReader
	logger             *Logger
	fs                 afs.Service
	dependencyCache    *MemoCache[dependencyLookup]

	seenMu sync.Mutex
	seen   map[[2]string]struct{}
}

func NewNodeModuleWalker(projectDir string, reader *PackageReader, logger *Logger, fs afs.Service) *NodeModuleWalker {
	return &NodeModuleWalker{
		projectDir:         projectDir,
		projectPackageFile: projectDir + "package.json",
		reader:             reader,
		logger:             logger,
		fs:                 fs,
		dependencyCache:    NewMemoCache[dependencyLookup](),
		seen:               map[[2]string]struct{}{},
	}
}

// Walk feeds every visitor with the mappings of the project and its
// dependencies. Only a missing or unreadable project package.json is an error.
func (w *NodeModuleWalker) Walk(ctx context.Context, visitors []*NodeResolutionVisitor) error {
	rootPkg, err := w.reader.Read(w.projectPackageFile)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return errors.Wrapf(ErrProjectPackageNotFound, "%s", DenormalizePathForOS(w.projectPackageFile))
		}
		return errors.Wrap(err, "reading project package.json")
	}
	w.markSeen(rootPkg.Path, rootPkg.Path)
	w.logger.Debug("visiting node modules", "importmaps", strings.Join(sortedVisitorNames(visitors), ", "))

	name, ok := rootPkg.Name()
	if !ok {
		w.logger.Warn(packageNameMustBeAStringWarning(rootPkg.Path, rootPkg.Object["name"]))
		return nil
	}
	return w.visit(ctx, visitors, packageInfo{pkg: rootPkg, name: name}, nil, false)
}

func (w *NodeModuleWalker) isRoot(pkg *PackageJson) bool {
	return pkg.Path == w.projectPackageFile
}

// markSeen returns false when the pair was already visited.
func (w *NodeModuleWalker) markSeen(packageFile string, importerFile string) bool {
	key := [2]string{packageFile, importerFile}
	w.seenMu.Lock()
	defer w.seenMu.Unlock()
	if _, ok := w.seen[key]; ok {
		return false
	}
	w.seen[key] = struct{}{}
	return true
}

func (w *NodeModuleWalker) visit(ctx context.Context, visitors []*NodeResolutionVisitor, info packageInfo, importer *packageInfo, isDevDependency bool) error {
	included := visitors
	if !w.isRoot(info.pkg) {
		if _, ok := info.pkg.Name(); !ok {
			// the dependency name from the importer is used instead
			w.logger.Warn(packageNameMustBeAStringWarning(info.pkg.Path, info.pkg.Object["name"]))
		}
		included = make([]*NodeResolutionVisitor, 0, len(visitors))
		for _, visitor := range visitors {
			if visitor.PackageIncluded == nil || visitor.PackageIncluded(info.name, info.pkg.Version()) {
				included = append(included, visitor)
			}
		}
	}
	if len(included) == 0 {
		return nil
	}

	// dependencies first, then the package itself
	if err := w.visitDependencies(ctx, included, info); err != nil {
		return err
	}
	w.visitPackage(ctx, included, info, importer, isDevDependency)
	return nil
}

// packageDependencies lists dependencies, peerDependencies then
// devDependencies not already listed.
func packageDependencies(object map[string]interface{}) []dependency {
	optionalDependencies, _ := asObject(object["optionalDependencies"])
	peerDependenciesMeta, _ := asObject(object["peerDependenciesMeta"])
	seen := map[string]bool{}
	result := []dependency{}

	add := func(field string, build func(name string, versionPattern string) dependency) {
		deps, ok := asObject(object[field])
		if !ok {
			return
		}
		for _, name := range sortedKeys(deps) {
			if seen[name] {
				continue
			}
			seen[name] = true
			versionPattern, _ := asString(deps[name])
			result = append(result, build(name, versionPattern))
		}
	}

	add("dependencies", func(name string, versionPattern string) dependency {
		_, isOptional := optionalDependencies[name]
		return dependency{name: name, versionPattern: versionPattern, isOptional: isOptional}
	})
	add("peerDependencies", func(name string, versionPattern string) dependency {
		isOptional := false
		if meta, ok := asObject(peerDependenciesMeta[name]); ok {
			isOptional, _ = meta["optional"].(bool)
		}
		return dependency{name: name, versionPattern: versionPattern, isOptional: isOptional}
	})
	add("optionalDependencies", func(name string, versionPattern string) dependency {
		return dependency{name: name, versionPattern: versionPattern, isOptional: true}
	})
	add("devDependencies", func(name string, versionPattern string) dependency {
		return dependency{name: name, versionPattern: versionPattern, isDevDependency: true}
	})
	return result
}

func (w *NodeModuleWalker) visitDependencies(ctx context.Context, visitors []*NodeResolutionVisitor, info packageInfo) error {
	dependencies := packageDependencies(info.pkg.Object)
	if len(dependencies) == 0 {
		return nil
	}
	isRoot := w.isRoot(info.pkg)
	devVisitors := []*NodeResolutionVisitor{}
	for _, visitor := range visitors {
		if visitor.MappingsForDevDependencies {
			devVisitors = append(devVisitors, visitor)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, dep := range dependencies {
		dep := dep
		dependencyVisitors := visitors
		if dep.isDevDependency {
			if !isRoot || len(devVisitors) == 0 {
				continue
			}
			dependencyVisitors = devVisitors
		}
		g.Go(func() error {
			return w.visitDependency(ctx, dependencyVisitors, dep, info)
		})
	}
	return g.Wait()
}

func (w *NodeModuleWalker) visitDependency(ctx context.Context, visitors []*NodeResolutionVisitor, dep dependency, importer packageInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lookup, err := w.findDependency(importer.pkg, dep.name)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			warning := cannotFindPackageWarning(dep.name, importer.pkg.Path, lookup.candidates, dep.isOptional)
			if dep.isOptional {
				w.logger.DebugWarning(warning)
			} else {
				w.logger.Warn(warning)
			}
			return nil
		}
		if errors.Is(err, ErrPackageSyntax) {
			return nil
		}
		return err
	}

	w.checkDependencyVersion(dep, lookup.pkg)

	if !w.markSeen(lookup.pkg.Path, importer.pkg.Path) {
		return nil
	}
	return w.visit(ctx, visitors, packageInfo{pkg: lookup.pkg, name: dep.name}, &importer, dep.isDevDependency)
}

func (w *NodeModuleWalker) checkDependencyVersion(dep dependency, pkg *PackageJson) {
	if dep.versionPattern == "" || pkg.Version() == "" {
		return
	}
	constraint, err := semver.NewConstraint(dep.versionPattern)
	if err != nil {
		// "workspace:*", "file:../x", git urls...
		return
	}
	version, err := semver.NewVersion(pkg.Version())
	if err != nil {
		return
	}
	if !constraint.Check(version) {
		w.logger.DebugWarning(dependencyVersionMismatchWarning(dep.name, dep.versionPattern, pkg.Version(), pkg.Path))
	}
}

// getNodeModuleCandidates lists the node_modules directories searched from
// the package owning packageFile, innermost first, relative to the project.
func (w *NodeModuleWalker) getNodeModuleCandidates(packageFile string) []string {
	dir := dirOf(packageFile)
	if dir == w.projectDir {
		return []string{"node_modules/"}
	}
	parts := strings.Split(relativePath(dir, w.projectDir), "node_modules/")[1:]
	candidates := make([]string, 0, len(parts)+1)
	for i := len(parts) - 1; i >= 0; i-- {
		candidates = append(candidates, "node_modules/"+strings.Join(parts[:i+1], "node_modules/")+"node_modules/")
	}
	return append(candidates, "node_modules/")
}

func (w *NodeModuleWalker) findDependency(importer *PackageJson, dependencyName string) (dependencyLookup, error) {
	return w.dependencyCache.Get(importer.Path+"\x00"+dependencyName, func() (dependencyLookup, error) {
		candidates := w.getNodeModuleCandidates(importer.Path)
		for _, candidate := range candidates {
			pkg, err := w.reader.Read(w.projectDir + candidate + dependencyName + "/package.json")
			if errors.Is(err, ErrPackageNotFound) {
				continue
			}
			return dependencyLookup{pkg: pkg, candidates: candidates}, err
		}
		return dependencyLookup{candidates: candidates}, ErrPackageNotFound
	})
}

func (w *NodeModuleWalker) computePackageDerivedInfo(info packageInfo, importer *packageInfo) packageDerivedInfo {
	actual := info.pkg.Dir()
	derived := packageDerivedInfo{
		packageDirectoryRelative: relativePath(actual, w.projectDir),
		packageDirectoryActual:   actual,
	}
	if importer == nil || w.isRoot(info.pkg) {
		derived.packageIsRoot = true
		derived.packageDirectoryExpected = actual
		return derived
	}
	importerDir := importer.pkg.Dir()
	derived.importerIsRoot = w.isRoot(importer.pkg)
	derived.importerRelative = relativePath(importerDir, w.projectDir)
	derived.packageDirectoryExpected = importerDir + "node_modules/" + info.name + "/"
	return derived
}

func (w *NodeModuleWalker) visitPackage(ctx context.Context, visitors []*NodeResolutionVisitor, info packageInfo, importer *packageInfo, isDevDependency bool) {
	derived := w.computePackageDerivedInfo(info, importer)
	pkg := info.pkg

	importMapFromField := readPackageImportMapField(ctx, w.fs, pkg, w.logger)
	for _, visitor := range visitors {
		w.addImportMapForPackage(visitor, pkg, derived, importMapFromField)
	}

	if imports, ok := pkg.Object["imports"]; ok {
		for _, visitor := range visitors {
			mappings := visitPackageImports(pkg, imports, visitor.Conditions, w.logger.Warn)
			mappings = applyWildcardRule(mappings, ImportsWildcard, pkg.Path, w.logger.Warn)
			w.addImportMapForPackage(visitor, pkg, derived, ImportMap{Imports: mappings})
		}
	}

	if exports, ok := pkg.Object["exports"]; ok {
		for _, visitor := range visitors {
			mappings := visitPackageExports(pkg, exports, info.name, derived.packageDirectoryRelative, visitor.Conditions, w.logger.Warn)
			mappings = applyWildcardRule(mappings, ExportsWildcard, pkg.Path, w.logger.Warn)
			for _, from := range sortedKeys(mappings) {
				w.addMappingForPackageAndImporter(visitor, derived, from, mappings[from])
			}
		}
		return
	}

	for _, visitor := range visitors {
		w.addMappingForPackageAndImporter(visitor, derived, info.name+"/", "./"+derived.packageDirectoryRelative)
		w.visitPackageMain(visitor, info, derived, isDevDependency)
	}
}

// addImportMapForPackage adds an import map declared by a package. The
// project import map is used as is, a dependency one is scoped to the
// dependency directory with addresses moved next to the project.
func (w *NodeModuleWalker) addImportMapForPackage(visitor *NodeResolutionVisitor, pkg *PackageJson, derived packageDerivedInfo, importMap ImportMap) {
	if derived.packageIsRoot {
		for _, from := range sortedKeys(importMap.Imports) {
			w.triggerVisitorOnMapping(visitor, "", from, importMap.Imports[from])
		}
		for _, scope := range sortedKeys(importMap.Scopes) {
			mappings := importMap.Scopes[scope]
			for _, from := range sortedKeys(mappings) {
				w.triggerVisitorOnMapping(visitor, scope, from, mappings[from])
			}
		}
		return
	}

	packageScope := "./" + derived.packageDirectoryRelative
	for _, from := range sortedKeys(importMap.Imports) {
		w.triggerVisitorOnMapping(visitor, packageScope, from, moveMappingValue(importMap.Imports[from], pkg.Path, w.projectDir))
	}
	for _, scope := range sortedKeys(importMap.Scopes) {
		movedScope := moveMappingValue(scope, pkg.Path, w.projectDir)
		mappings := importMap.Scopes[scope]
		for _, from := range sortedKeys(mappings) {
			w.triggerVisitorOnMapping(visitor, movedScope, from, moveMappingValue(mappings[from], pkg.Path, w.projectDir))
		}
	}
}

// addMappingForPackageAndImporter makes a package mapping visible to the
// package itself and to its importer. The project and its direct
// dependencies map at top level.
func (w *NodeModuleWalker) addMappingForPackageAndImporter(visitor *NodeResolutionVisitor, derived packageDerivedInfo, from string, to string) {
	if derived.packageIsRoot {
		w.triggerVisitorOnMapping(visitor, "", from, to)
		return
	}
	packageScope := "./" + derived.packageDirectoryRelative
	w.triggerVisitorOnMapping(visitor, packageScope, from, to)
	if derived.importerIsRoot {
		w.triggerVisitorOnMapping(visitor, "", from, to)
	} else {
		w.triggerVisitorOnMapping(visitor, "./"+derived.importerRelative, from, to)
	}
	if derived.moved() {
		w.triggerVisitorOnMapping(visitor, "./"+derived.importerRelative, from, to)
	}
}

func (w *NodeModuleWalker) visitPackageMain(visitor *NodeResolutionVisitor, info packageInfo, derived packageDerivedInfo, isDevDependency bool) {
	entry := resolvePackageMain(info.pkg, visitor.Conditions, visitor.entrySeverity(isDevDependency), w.logger)
	if !entry.Found {
		if entry.Empty {
			return
		}
		if entry.Warning != nil {
			if entry.Declared {
				w.logger.Warn(*entry.Warning)
			} else {
				w.logger.DebugWarning(*entry.Warning)
			}
			if entry.Warning.Code == PackageEntryMustBeRelative {
				return
			}
		}
	}

	to := toProjectRelative(entry.File, w.projectDir)
	scope := ""
	if !derived.packageIsRoot && !derived.importerIsRoot {
		scope = "./" + derived.importerRelative
	}
	w.triggerVisitorOnMapping(visitor, scope, info.name, to)

	// hoisted by the package manager: the importer must still find it
	if derived.moved() {
		w.triggerVisitorOnMapping(visitor, "./"+derived.importerRelative, info.name, to)
	}
}

func (w *NodeModuleWalker) triggerVisitorOnMapping(visitor *NodeResolutionVisitor, scope string, from string, to string) {
	if scope != "" && from == "./" && to == scope {
		// inside the package, its own directory and name resolve to itself
		w.triggerVisitorOnMapping(visitor, scope, scope, scope)
		w.triggerVisitorOnMapping(visitor, scope, packageNameFromScope(scope), scope)
	}
	visitor.Mappings.Add(scope, from, to)
}

func sortedVisitorNames(visitors []*NodeResolutionVisitor) []string {
	names := make([]string, 0, len(visitors))
	for _, visitor := range visitors {
		names = append(names, visitor.Name)
	}
	sort.Strings(names)
	return names
}
