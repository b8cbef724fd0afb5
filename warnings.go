package main

import (
	"fmt"
	"strings"
)

type WarningCode string

const (
	PackageNameMustBeAString           WarningCode = "PACKAGE_NAME_MUST_BE_A_STRING"
	CannotFindPackage                  WarningCode = "CANNOT_FIND_PACKAGE"
	PackageSyntaxError                 WarningCode = "PACKAGE_SYNTAX_ERROR"
	DependencyVersionMismatch          WarningCode = "DEPENDENCY_VERSION_MISMATCH"
	ExportsSubpathUnexpected           WarningCode = "EXPORTS_SUBPATH_UNEXPECTED"
	ExportsSubpathMixedKeys            WarningCode = "EXPORTS_SUBPATH_MIXED_KEYS"
	ExportsSubpathValueMustBeRelative  WarningCode = "EXPORTS_SUBPATH_VALUE_MUST_BE_RELATIVE"
	ExportsWildcard                    WarningCode = "EXPORTS_WILDCARD"
	ImportsSubpathUnexpected           WarningCode = "IMPORTS_SUBPATH_UNEXPECTED"
	ImportsSubpathMixedKeys            WarningCode = "IMPORTS_SUBPATH_MIXED_KEYS"
	ImportsSubpathValueUnexpected      WarningCode = "IMPORTS_SUBPATH_VALUE_UNEXPECTED"
	ImportsWildcard                    WarningCode = "IMPORTS_WILDCARD"
	PackageEntryNotFound               WarningCode = "PACKAGE_ENTRY_NOT_FOUND"
	PackageEntryMustBeRelative         WarningCode = "PACKAGE_ENTRY_MUST_BE_RELATIVE"
	PreferExportsField                 WarningCode = "PREFER_EXPORTS_FIELD"
	BrowserFieldNotImplemented         WarningCode = "BROWSER_FIELD_NOT_IMPLEMENTED"
	PackageImportMapNotFound           WarningCode = "PACKAGE_IMPORTMAP_NOT_FOUND"
	PackageImportMapUnexpected         WarningCode = "PACKAGE_IMPORTMAP_UNEXPECTED"
	ImportResolutionFailed             WarningCode = "IMPORT_RESOLUTION_FAILED"
	FileNotFound                       WarningCode = "FILE_NOT_FOUND"
	FileParseFailed                    WarningCode = "FILE_PARSE_FAILED"
	BareSpecifierAutomapping           WarningCode = "BARE_SPECIFIER_AUTOMAPPING"
	ExtensionlessAutomapping           WarningCode = "EXTENSIONLESS_AUTOMAPPING"
	ProjectEntryPointResolutionFailed  WarningCode = "PROJECT_ENTRY_POINT_RESOLUTION_FAILED"
	ImportResolutionCheckDisabled      WarningCode = "IMPORT_RESOLUTION_CHECK_DISABLED"
	ExtensionlessAutomappingNeedsMagic WarningCode = "EXTENSIONLESS_AUTOMAPPING_NEEDS_MAGIC_EXTENSIONS"
)

type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Warning is a recoverable problem found while building an import map.
// It is reported through the logger and never stops the run.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
	Details []Detail    `json:"details,omitempty"`
}

func newWarning(code WarningCode, message string, details ...Detail) Warning {
	return Warning{Code: code, Message: message, Details: details}
}

func detail(key string, value string) Detail {
	return Detail{Key: key, Value: value}
}

// String renders the message followed by one "--- key ---" block per detail.
func (w Warning) String() string {
	var sb strings.Builder
	sb.WriteString(w.Message)
	for _, d := range w.Details {
		sb.WriteString("\n--- ")
		sb.WriteString(d.Key)
		sb.WriteString(" ---\n")
		sb.WriteString(d.Value)
	}
	return sb.String()
}

// Severity decides whether a warning is printed at warn or debug level.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityDebug Severity = "debug"
)

func severityFromBool(warn bool) Severity {
	if warn {
		return SeverityWarn
	}
	return SeverityDebug
}

func jsonPreview(value interface{}) string {
	data, err := marshalIndent(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func fileDetail(p string) string {
	return DenormalizePathForOS(p)
}

// ---------------- package ----------------

func packageNameMustBeAStringWarning(packageFile string, name interface{}) Warning {
	return newWarning(PackageNameMustBeAString,
		"package name field must be a string",
		detail("package name field", jsonPreview(name)),
		detail("package.json path", fileDetail(packageFile)),
	)
}

func cannotFindPackageWarning(dependencyName string, importerFile string, candidates []string, optional bool) Warning {
	message := fmt.Sprintf("cannot find package %q", dependencyName)
	if optional {
		message = fmt.Sprintf("cannot find optional package %q", dependencyName)
	}
	return newWarning(CannotFindPackage, message,
		detail("required by", fileDetail(importerFile)),
		detail("node_modules candidates", strings.Join(candidates, "\n")),
	)
}

func packageSyntaxErrorWarning(packageFile string, err error) Warning {
	return newWarning(PackageSyntaxError,
		"error while parsing package.json.",
		detail("syntax error message", err.Error()),
		detail("package.json path", fileDetail(packageFile)),
	)
}

func dependencyVersionMismatchWarning(dependencyName string, versionPattern string, version string, packageFile string) Warning {
	return newWarning(DependencyVersionMismatch,
		fmt.Sprintf("package %q version does not satisfy the declared range", dependencyName),
		detail("declared range", versionPattern),
		detail("installed version", version),
		detail("package.json path", fileDetail(packageFile)),
	)
}

// ---------------- subpaths ----------------

func subpathWarning(code WarningCode, message string, value interface{}, packageFile string, trace []string) Warning {
	details := []Detail{
		detail("value", jsonPreview(value)),
		detail("package.json path", fileDetail(packageFile)),
	}
	if len(trace) > 0 {
		details = append(details, detail("path", strings.Join(trace, "\n")))
	}
	return newWarning(code, message, details...)
}

func wildcardIgnoredWarning(code WarningCode, key string, value string, packageFile string) Warning {
	return newWarning(code,
		`Ignoring subpath using "*" because it is not supported by importmap`,
		detail("key", key),
		detail("value", value),
		detail("package.json path", fileDetail(packageFile)),
		detail("see also", "https://github.com/WICG/import-maps/issues/232"),
	)
}

// ---------------- entry ----------------

func packageEntryNotFoundWarning(field string, fileTried string, extensionsTried []string, packageFile string) Warning {
	details := []Detail{
		detail("url tried", fileDetail(fileTried)),
	}
	if len(extensionsTried) > 0 {
		details = append(details, detail("extensions tried", strings.Join(extensionsTried, ", ")))
	}
	details = append(details, detail("package.json path", fileDetail(packageFile)))
	return newWarning(PackageEntryNotFound,
		fmt.Sprintf("Cannot find package entry file for %q field", field),
		details...,
	)
}

func packageEntryMustBeRelativeWarning(field string, value string, packageFile string) Warning {
	return newWarning(PackageEntryMustBeRelative,
		fmt.Sprintf("%q field in package.json must be inside package.json directory", field),
		detail(field, value),
		detail("package.json path", fileDetail(packageFile)),
	)
}

func preferExportsFieldWarning(packageName string, packageFile string, field string, condition string, value string, repositoryUrl string) Warning {
	suggestion := fmt.Sprintf(`add the following to "packagesManualOverrides":
{
  %q: {
    "exports": {
      %q: %q
    }
  }
}`, packageName, condition, value)
	details := []Detail{
		detail("package.json path", fileDetail(packageFile)),
		detail("suggestion", suggestion),
	}
	if repositoryUrl != "" {
		details = append(details, detail("suggestion 2", fmt.Sprintf(`send a pull request to %s adding "exports" field`, repositoryUrl)))
	}
	return newWarning(PreferExportsField,
		fmt.Sprintf("%q field in package.json is non-standard, package should declare %q in \"exports\" field", field, condition),
		details...,
	)
}

func browserFieldNotImplementedWarning(packageFile string) Warning {
	return newWarning(BrowserFieldNotImplemented,
		`"browser" field in package.json is an object, which is not supported`,
		detail("package.json path", fileDetail(packageFile)),
		detail("see also", "https://github.com/defunctzombie/package-browser-field-spec"),
	)
}

// ---------------- importmap field ----------------

func packageImportMapNotFoundWarning(importMapFile string, packageFile string) Warning {
	return newWarning(PackageImportMapNotFound,
		`importmap file declared in package.json "importmap" field does not exist`,
		detail("importmap file path", fileDetail(importMapFile)),
		detail("package.json path", fileDetail(packageFile)),
	)
}

func packageImportMapUnexpectedWarning(value interface{}, packageFile string) Warning {
	return newWarning(PackageImportMapUnexpected,
		`unexpected value in package.json "importmap" field: value must be a string or an object`,
		detail("value", jsonPreview(value)),
		detail("package.json path", fileDetail(packageFile)),
	)
}

// ---------------- source files ----------------

type importResolutionFailure struct {
	specifier      string
	importedBy     string
	reason         string
	suggestions    []string
	gotBareError   bool
	resolvedTarget string
}

func importResolutionFailedWarning(f importResolutionFailure) Warning {
	code := ImportResolutionFailed
	if !f.gotBareError {
		code = FileNotFound
	}
	details := []Detail{
		detail("import source", f.importedBy),
		detail("reason", f.reason),
	}
	if f.resolvedTarget != "" {
		details = append(details, detail("url", fileDetail(f.resolvedTarget)))
	}
	for i, s := range f.suggestions {
		key := "suggestion"
		if len(f.suggestions) > 1 {
			key = fmt.Sprintf("suggestion %d", i+1)
		}
		details = append(details, detail(key, s))
	}
	return newWarning(code, fmt.Sprintf("Import resolution failed for %q", f.specifier), details...)
}

func automappingWarning(code WarningCode, specifier string, importedBy string, mapping string, reason string) Warning {
	return newWarning(code,
		fmt.Sprintf("Auto mapping for %q", specifier),
		detail("import source", importedBy),
		detail("mapping", mapping),
		detail("reason", reason),
	)
}

func fileParseFailedWarning(file string, err error) Warning {
	return newWarning(FileParseFailed,
		"error while reading file to collect import specifiers",
		detail("error", err.Error()),
		detail("file", fileDetail(file)),
	)
}

func projectEntryPointResolutionFailedWarning(packageFile string, reason string) Warning {
	return newWarning(ProjectEntryPointResolutionFailed,
		"Cannot find project entry point",
		detail("reason", reason),
		detail("package.json path", fileDetail(packageFile)),
	)
}

// ---------------- config ----------------

func importResolutionCheckDisabledWarning(importMapFile string, options []string) Warning {
	return newWarning(ImportResolutionCheckDisabled,
		fmt.Sprintf("%s cannot be applied because ignoreJsFiles is enabled", strings.Join(options, ", ")),
		detail("import map file", importMapFile),
	)
}

func extensionlessAutomappingNeedsMagicExtensionsWarning(importMapFile string) Warning {
	return newWarning(ExtensionlessAutomappingNeedsMagic,
		"extensionlessAutomapping has no effect without magicExtensions",
		detail("import map file", importMapFile),
		detail("suggestion", `add "magicExtensions": [".js"]`),
	)
}
