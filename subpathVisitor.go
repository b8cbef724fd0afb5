package main

import (
	"regexp"
	"sort"
	"strings"
)

// ConditionSet is ordered by priority: the first condition wins.
type ConditionSet []string

func (c ConditionSet) Has(condition string) bool {
	for _, existing := range c {
		if existing == condition {
			return true
		}
	}
	return false
}

// packageConditions builds the condition set for one import map:
// user conditions, then the dev/prod condition, the module format
// condition, the runtime, and finally "default".
func packageConditions(userConditions []string, runtime string, moduleFormat string, dev *bool) ConditionSet {
	conditions := ConditionSet{}
	add := func(condition string) {
		if condition != "" && !conditions.Has(condition) {
			conditions = append(conditions, condition)
		}
	}
	for _, condition := range userConditions {
		add(condition)
	}
	if dev != nil {
		if *dev {
			add("development")
		} else {
			add("production")
		}
	}
	if moduleFormat == "cjs" {
		add("require")
	} else {
		add("import")
	}
	if runtime == "" {
		runtime = "browser"
	}
	add(runtime)
	add("default")
	return conditions
}

type subpathField uint8

const (
	exportsField subpathField = iota
	importsField
)

func (f subpathField) name() string {
	if f == importsField {
		return "imports"
	}
	return "exports"
}

func (f subpathField) isSubpathKey(key string) bool {
	if f == importsField {
		return strings.HasPrefix(key, "#")
	}
	return strings.HasPrefix(key, ".")
}

var specifierSchemeRegexp = regexp.MustCompile(`^[a-zA-Z]+:`)

// specifierIsRelative is false for values escaping the package: "../x",
// protocol relative "//x" and urls such as "https://x".
func specifierIsRelative(specifier string) bool {
	if strings.HasPrefix(specifier, "//") || strings.HasPrefix(specifier, "../") {
		return false
	}
	return !specifierSchemeRegexp.MatchString(specifier)
}

// subpathVisitor interprets an "exports" or "imports" value. Each string leaf
// reached through the condition set is reported with the subpath key it
// belongs to. The interpreter cases are:
//
//	false          explicit absence, counts as handled
//	nil            nothing
//	string         leaf
//	array          exports only, layered into an object first
//	object         either all subpath keys or all condition keys
type subpathVisitor struct {
	field       subpathField
	packageFile string
	conditions  ConditionSet
	report      func(Warning)
	onSubpath   func(key string, value string)
}

func (v *subpathVisitor) visit(value interface{}, trace []string) bool {
	switch typed := value.(type) {
	case bool:
		if !typed && v.field == exportsField {
			return true
		}
	case nil:
		return false
	case string:
		return v.visitLeaf(typed, trace)
	case []interface{}:
		if v.field == exportsField {
			return v.visitObject(exportsObjectFromExportsArray(typed), trace)
		}
	case map[string]interface{}:
		return v.visitObject(typed, trace)
	}
	v.warnUnexpected(value, trace)
	return false
}

func (v *subpathVisitor) visitLeaf(value string, trace []string) bool {
	key := ""
	for i := len(trace) - 1; i >= 0; i-- {
		if v.field.isSubpathKey(trace[i]) {
			key = trace[i]
			break
		}
	}
	if key == "" {
		if v.field == importsField {
			v.warnUnexpected(value, trace)
			return false
		}
		key = "."
	}
	if !specifierIsRelative(value) {
		if v.field == importsField {
			v.report(subpathWarning(ImportsSubpathValueUnexpected,
				`unexpected value in package.json "imports" field: value must be relative to the package`,
				value, v.packageFile, trace))
		} else {
			v.report(subpathWarning(ExportsSubpathValueMustBeRelative,
				`unexpected value in package.json "exports" field: value must be relative to the package`,
				value, v.packageFile, trace))
		}
		return false
	}
	v.onSubpath(key, value)
	return true
}

func (v *subpathVisitor) visitObject(object map[string]interface{}, trace []string) bool {
	keys := make([]string, 0, len(object))
	subpathKeyCount := 0
	for key := range object {
		keys = append(keys, key)
		if v.field.isSubpathKey(key) {
			subpathKeyCount++
		}
	}
	sort.Strings(keys)

	if subpathKeyCount > 0 && subpathKeyCount < len(keys) {
		code := ExportsSubpathMixedKeys
		if v.field == importsField {
			code = ImportsSubpathMixedKeys
		}
		v.report(subpathWarning(code,
			`unexpected keys in package.json "`+v.field.name()+`" field: cannot mix relative and conditional keys`,
			object, v.packageFile, trace))
		return false
	}

	if subpathKeyCount > 0 {
		// Every subpath maps a distinct specifier so all of them are visited.
		leadsToSomething := false
		for _, key := range keys {
			if v.visit(object[key], appendTrace(trace, key)) {
				leadsToSomething = true
			}
		}
		return leadsToSomething
	}

	for _, condition := range v.conditions {
		value, ok := object[condition]
		if !ok {
			continue
		}
		if v.visit(value, appendTrace(trace, condition)) {
			return true
		}
	}
	return false
}

func (v *subpathVisitor) warnUnexpected(value interface{}, trace []string) {
	code := ExportsSubpathUnexpected
	if v.field == importsField {
		code = ImportsSubpathUnexpected
	}
	v.report(subpathWarning(code,
		`unexpected value in package.json "`+v.field.name()+`" field: value must be an object or a string`,
		value, v.packageFile, trace))
}

func appendTrace(trace []string, key string) []string {
	next := make([]string, len(trace), len(trace)+1)
	copy(next, trace)
	return append(next, key)
}

// exportsObjectFromExportsArray layers array elements into one object.
// String elements become the "default" condition, later elements win.
func exportsObjectFromExportsArray(array []interface{}) map[string]interface{} {
	result := map[string]interface{}{}
	for _, element := range array {
		if s, ok := element.(string); ok {
			result["default"] = s
			continue
		}
		if object, ok := asObject(element); ok {
			for k, value := range object {
				result[k] = value
			}
		}
	}
	return result
}

// specifierToSource turns an exports key into the specifier users import.
func specifierToSource(key string, packageName string) string {
	if key == "." {
		return packageName
	}
	if strings.HasPrefix(key, "/") {
		return key
	}
	if strings.HasPrefix(key, "./") {
		return packageName + key[1:]
	}
	return packageName + "/" + key
}

// addressToDestination turns an exports value into a project relative
// address. packageDirectoryRelative is "" for the project itself.
func addressToDestination(address string, packageDirectoryRelative string) string {
	if strings.HasPrefix(address, "/") {
		return address
	}
	if strings.HasPrefix(address, "./") {
		return "./" + packageDirectoryRelative + address[2:]
	}
	return "./" + packageDirectoryRelative + address
}

// visitPackageExports returns the specifier -> destination table declared by
// the "exports" field, before wildcard filtering.
func visitPackageExports(pkg *PackageJson, exports interface{}, packageName string, packageDirectoryRelative string, conditions ConditionSet, report func(Warning)) map[string]string {
	mappings := map[string]string{}
	visitor := &subpathVisitor{
		field:       exportsField,
		packageFile: pkg.Path,
		conditions:  conditions,
		report:      report,
		onSubpath: func(key string, value string) {
			mappings[specifierToSource(key, packageName)] = addressToDestination(value, packageDirectoryRelative)
		},
	}
	visitor.visit(exports, nil)
	return mappings
}

// visitPackageImports returns the "#specifier" -> address table declared by
// the "imports" field. Addresses stay relative to the package.json.
func visitPackageImports(pkg *PackageJson, imports interface{}, conditions ConditionSet, report func(Warning)) map[string]string {
	mappings := map[string]string{}
	visitor := &subpathVisitor{
		field:       importsField,
		packageFile: pkg.Path,
		conditions:  conditions,
		report:      report,
		onSubpath: func(key string, value string) {
			mappings[key] = value
		},
	}
	if _, isObject := asObject(imports); !isObject {
		visitor.warnUnexpected(imports, nil)
		return mappings
	}
	visitor.visit(imports, nil)
	return mappings
}

// applyWildcardRule keeps mappings an import map can express. A trailing
// "/*" on both sides becomes a prefix mapping, other wildcards are dropped.
func applyWildcardRule(mappings map[string]string, code WarningCode, packageFile string, report func(Warning)) map[string]string {
	result := make(map[string]string, len(mappings))
	for _, key := range sortedKeys(mappings) {
		value := mappings[key]
		if !strings.Contains(key, "*") {
			result[key] = value
			continue
		}
		if strings.HasSuffix(key, "/*") && strings.Count(key, "*") == 1 &&
			strings.HasSuffix(value, "/*") && strings.Count(value, "*") == 1 {
			result[strings.TrimSuffix(key, "*")] = strings.TrimSuffix(value, "*")
			continue
		}
		report(wildcardIgnoredWarning(code, key, value, packageFile))
	}
	return result
}
