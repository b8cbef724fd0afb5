package main

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

type WriteImportMapFilesOptions struct {
	// ProjectDir is an absolute internal path ending with "/".
	ProjectDir                string
	ImportMapFiles            map[string]*ImportMapFileConfig
	PackagesManualOverrides   PackageManualOverrides
	ExportsFieldWarningConfig ExportsFieldWarningConfig
	BrowserFieldWarning       Severity
	// WriteFiles disabled gives a dry run, import maps are only returned.
	WriteFiles bool
	FS         afs.Service
}

type importMapFileJob struct {
	file     string
	config   *ImportMapFileConfig
	mappings *ImportMapAccumulator
}

// WriteImportMapFiles generates every configured import map, writes them
// under the project directory and returns them keyed by file.
func WriteImportMapFiles(ctx context.Context, options WriteImportMapFilesOptions, logger *Logger) (map[string]ImportMap, error) {
	if len(options.ImportMapFiles) == 0 {
		return nil, errors.New("importMapFiles is empty")
	}
	fs := options.FS
	if fs == nil {
		fs = afs.New()
	}
	projectDir := options.ProjectDir
	reader := NewPackageReader(logger, options.PackagesManualOverrides)

	jobs := make([]importMapFileJob, 0, len(options.ImportMapFiles))
	var visitors []*NodeResolutionVisitor
	for _, importMapFile := range sortedKeys(options.ImportMapFiles) {
		config := options.ImportMapFiles[importMapFile]
		if config == nil {
			config = &ImportMapFileConfig{}
		}
		warnAboutConfig(importMapFile, config, logger)

		job := importMapFileJob{file: importMapFile, config: config, mappings: NewImportMapAccumulator()}
		if config.InitialImportMap != nil {
			job.mappings.AddImportMap(*config.InitialImportMap)
		}
		jobs = append(jobs, job)

		if !config.MappingsForNodeResolution {
			continue
		}
		packageIncluded, err := createPackageIncludedPredicate(config.PackageIncludedPatterns, config.PackageExcludedPatterns)
		if err != nil {
			return nil, errors.WithMessagef(err, "importMapFiles[%q]", importMapFile)
		}
		visitors = append(visitors, &NodeResolutionVisitor{
			Name:                       importMapFile,
			Conditions:                 packageConditions(config.PackageUserConditions, config.runtime(), config.moduleFormat(), config.Dev),
			MappingsForDevDependencies: config.MappingsForDevDependencies,
			PackageIncluded:            packageIncluded,
			ExportsFieldWarning:        options.ExportsFieldWarningConfig,
			BrowserFieldWarning:        options.BrowserFieldWarning,
			Mappings:                   job.mappings,
		})
	}

	if len(visitors) > 0 {
		walker := NewNodeModuleWalker(projectDir, reader, logger, fs)
		if err := walker.Walk(ctx, visitors); err != nil {
			return nil, err
		}
	}

	importMaps := make(map[string]ImportMap, len(jobs))
	for _, job := range jobs {
		importMap := job.mappings.ImportMap()
		if !job.config.IgnoreJsFiles {
			var err error
			importMap, err = visitSourceFiles(ctx, projectDir, importMap, SourceFilesOptions{
				EntryPoints:              job.config.EntryPoints,
				Conditions:               packageConditions(job.config.PackageUserConditions, job.config.runtime(), job.config.moduleFormat(), job.config.Dev),
				Runtime:                  job.config.runtime(),
				MagicExtensions:          job.config.MagicExtensions,
				BareSpecifierAutomapping: job.config.BareSpecifierAutomapping,
				ExtensionlessAutomapping: job.config.ExtensionlessAutomapping,
				RemoveUnusedMappings:     job.config.RemoveUnusedMappings,
			}, reader, logger)
			if err != nil {
				return nil, errors.WithMessagef(err, "visiting source files for %s", job.file)
			}
		}
		importMaps[job.file] = OptimizeImportMap(importMap)
	}

	if !options.WriteFiles {
		return importMaps, nil
	}
	for _, job := range jobs {
		if err := writeImportMapFile(ctx, fs, resolvePath(job.file, projectDir, projectDir), importMaps[job.file], logger); err != nil {
			return nil, err
		}
	}
	for _, job := range jobs {
		if job.config.UseForJsConfigJSON {
			if _, err := writeJsConfig(ctx, fs, projectDir, importMaps[job.file], logger); err != nil {
				return nil, err
			}
			break
		}
	}
	return importMaps, nil
}

func warnAboutConfig(importMapFile string, config *ImportMapFileConfig, logger *Logger) {
	if config.IgnoreJsFiles {
		var disabled []string
		if config.RemoveUnusedMappings {
			disabled = append(disabled, "removeUnusedMappings")
		}
		if config.BareSpecifierAutomapping {
			disabled = append(disabled, "bareSpecifierAutomapping")
		}
		if config.ExtensionlessAutomapping {
			disabled = append(disabled, "extensionlessAutomapping")
		}
		if len(disabled) > 0 {
			logger.Warn(importResolutionCheckDisabledWarning(importMapFile, disabled))
		}
	}
	if config.ExtensionlessAutomapping && len(config.MagicExtensions) == 0 {
		logger.Warn(extensionlessAutomappingNeedsMagicExtensionsWarning(importMapFile))
	}
}

func writeImportMapFile(ctx context.Context, fs afs.Service, importMapFile string, importMap ImportMap, logger *Logger) error {
	content, err := importMap.Bytes()
	if err != nil {
		return err
	}
	if err := fs.Upload(ctx, importMapFile, file.DefaultFileOsMode, bytes.NewReader(content)); err != nil {
		return errors.Wrapf(err, "writing %s", fileDetail(importMapFile))
	}
	logger.Info("-> " + fileDetail(importMapFile))
	return nil
}
