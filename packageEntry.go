package main

import (
	"path"
	"strings"
)

// PackageEntry is the file behind a package "main" like field.
type PackageEntry struct {
	Found bool
	// Field is the package.json field the entry comes from.
	Field string
	// Declared is false when Field is absent and "./index" was assumed.
	Declared bool
	// Empty marks an explicit "" value, meaning the package has no entry.
	Empty bool
	// File is the resolved file, or the path that was tried when not found.
	File    string
	Warning *Warning
}

type entryFieldSeverity struct {
	preferExports Severity
	browser       Severity
}

func repositoryUrl(object map[string]interface{}) string {
	switch repository := object["repository"].(type) {
	case string:
		return repository
	case map[string]interface{}:
		return stringField(repository, "url")
	}
	return ""
}

// decidePackageEntryFieldName picks the field used as package entry when
// there is no "exports" field.
func decidePackageEntryFieldName(pkg *PackageJson, conditions ConditionSet, severity entryFieldSeverity, logger *Logger) string {
	packageName, _ := pkg.Name()
	for _, condition := range conditions {
		field := ""
		switch condition {
		case "import":
			if _, ok := asString(pkg.Object["module"]); ok {
				field = "module"
			} else if _, ok := asString(pkg.Object["jsnext:main"]); ok {
				field = "jsnext:main"
			}
		case "browser":
			switch pkg.Object["browser"].(type) {
			case string:
				field = "browser"
			case map[string]interface{}:
				logger.Report(browserFieldNotImplementedWarning(pkg.Path), severity.browser)
			}
		}
		if field == "" {
			continue
		}
		logger.Report(preferExportsFieldWarning(
			packageName, pkg.Path, field, condition, stringField(pkg.Object, field), repositoryUrl(pkg.Object),
		), severity.preferExports)
		return field
	}
	return "main"
}

func tryToResolvePackageEntryFile(pkg *PackageJson, field string) PackageEntry {
	entry := PackageEntry{Field: field}
	value, declared := asString(pkg.Object[field])
	entry.Declared = declared
	if declared && value == "" {
		entry.Empty = true
		return entry
	}
	if !declared {
		value = "./index"
	} else if strings.HasSuffix(value, "/") {
		value += "index"
	}

	packageDir := pkg.Dir()
	file := value
	if !strings.HasPrefix(value, "/") {
		file = path.Join(packageDir, value)
	}
	entry.File = file
	if !isInsideDir(file, packageDir) {
		w := packageEntryMustBeRelativeWarning(field, value, pkg.Path)
		entry.Warning = &w
		return entry
	}

	resolved := resolveFile(file, ResolveFileOptions{
		MagicDirectoryIndex: true,
		MagicExtensions:     packageEntryExtensions,
	})
	if !resolved.Found {
		var extensionsTried []string
		if !hasExtension(file) {
			extensionsTried = packageEntryExtensions
		}
		w := packageEntryNotFoundWarning(field, file, extensionsTried, pkg.Path)
		entry.Warning = &w
		return entry
	}
	entry.Found = true
	entry.File = resolved.Path
	return entry
}

// resolvePackageMain resolves the entry of a package without "exports".
func resolvePackageMain(pkg *PackageJson, conditions ConditionSet, severity entryFieldSeverity, logger *Logger) PackageEntry {
	field := decidePackageEntryFieldName(pkg, conditions, severity, logger)
	return tryToResolvePackageEntryFile(pkg, field)
}
