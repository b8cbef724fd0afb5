package main

import (
	"fmt"
)

// resolveProjectEntryPoint finds the file the project package exposes as its
// main export, relative to the project directory. It returns "" and warns
// when nothing usable is declared.
func resolveProjectEntryPoint(pkg *PackageJson, projectDir string, conditions ConditionSet, logger *Logger) string {
	packageName, ok := pkg.Name()
	if !ok {
		logger.Warn(packageNameMustBeAStringWarning(pkg.Path, pkg.Object["name"]))
		return ""
	}

	exports, hasExports := pkg.Object["exports"]
	if hasExports {
		if exports == nil || exports == false {
			logger.Warn(projectEntryPointResolutionFailedWarning(pkg.Path, fmt.Sprintf("explicitly disabled in package.json (%v)", exports)))
			return ""
		}
		mappings := visitPackageExports(pkg, exports, packageName, "", conditions, logger.Warn)
		address, found := mappings[packageName]
		if !found {
			logger.Warn(projectEntryPointResolutionFailedWarning(pkg.Path, fmt.Sprintf("no %q export in package.json exports", ".")))
			return ""
		}
		file := resolvePath(address, projectDir, projectDir)
		if !resolveFile(file, ResolveFileOptions{}).Found {
			logger.Warn(projectEntryPointResolutionFailedWarning(pkg.Path, fmt.Sprintf("file not found at %s", fileDetail(file))))
			return ""
		}
		return toProjectRelative(file, projectDir)
	}

	entry := resolvePackageMain(pkg, conditions, entryFieldSeverity{preferExports: SeverityDebug, browser: SeverityDebug}, logger)
	if entry.Empty {
		logger.Warn(projectEntryPointResolutionFailedWarning(pkg.Path, fmt.Sprintf("%q field is an empty string", entry.Field)))
		return ""
	}
	if !entry.Found {
		reason := fmt.Sprintf("file not found at %s", fileDetail(entry.File))
		if entry.Warning != nil {
			reason = entry.Warning.Message
		}
		logger.Warn(projectEntryPointResolutionFailedWarning(pkg.Path, reason))
		return ""
	}
	return toProjectRelative(entry.File, projectDir)
}
