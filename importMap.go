package main

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/francoispqt/gojay"
	"github.com/pkg/errors"
)

// ErrBareSpecifier is returned when a bare specifier matches no mapping.
var ErrBareSpecifier = errors.New("bare specifier not mapped")

type ImportMap struct {
	Imports map[string]string            `json:"imports"`
	Scopes  map[string]map[string]string `json:"scopes"`
}

func NewImportMap() ImportMap {
	return ImportMap{Imports: map[string]string{}, Scopes: map[string]map[string]string{}}
}

func (m ImportMap) Clone() ImportMap {
	clone := NewImportMap()
	for from, to := range m.Imports {
		clone.Imports[from] = to
	}
	for scope, mappings := range m.Scopes {
		scoped := make(map[string]string, len(mappings))
		for from, to := range mappings {
			scoped[from] = to
		}
		clone.Scopes[scope] = scoped
	}
	return clone
}

// ---------------- accumulator ----------------

// ImportMapAccumulator collects mappings from concurrent visitors. A later
// write for the same (scope, from) replaces the earlier one.
type ImportMapAccumulator struct {
	mu        sync.Mutex
	importMap ImportMap
}

func NewImportMapAccumulator() *ImportMapAccumulator {
	return &ImportMapAccumulator{importMap: NewImportMap()}
}

// Add records from -> to, top-level when scope is "".
func (a *ImportMapAccumulator) Add(scope string, from string, to string) {
	// "/" -> "/" would be composed into a meaningless double prefix.
	if scope == "" && from == "/" && to == "/" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if scope == "" {
		a.importMap.Imports[from] = to
		return
	}
	scoped, ok := a.importMap.Scopes[scope]
	if !ok {
		scoped = map[string]string{}
		a.importMap.Scopes[scope] = scoped
	}
	scoped[from] = to
}

func (a *ImportMapAccumulator) AddImportMap(importMap ImportMap) {
	for _, from := range sortedKeys(importMap.Imports) {
		a.Add("", from, importMap.Imports[from])
	}
	for _, scope := range sortedKeys(importMap.Scopes) {
		mappings := importMap.Scopes[scope]
		for _, from := range sortedKeys(mappings) {
			a.Add(scope, from, mappings[from])
		}
	}
}

func (a *ImportMapAccumulator) Has(scope string, from string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if scope == "" {
		_, ok := a.importMap.Imports[from]
		return ok
	}
	_, ok := a.importMap.Scopes[scope][from]
	return ok
}

func (a *ImportMapAccumulator) ImportMap() ImportMap {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.importMap.Clone()
}

// ---------------- optimize / sort ----------------

// OptimizeImportMap drops scoped mappings identical to the top-level one and
// scopes left empty.
func OptimizeImportMap(m ImportMap) ImportMap {
	result := NewImportMap()
	for from, to := range m.Imports {
		result.Imports[from] = to
	}
	for scope, mappings := range m.Scopes {
		kept := map[string]string{}
		for from, to := range mappings {
			if topLevel, ok := m.Imports[from]; ok && topLevel == to {
				continue
			}
			kept[from] = to
		}
		if len(kept) > 0 {
			result.Scopes[scope] = kept
		}
	}
	return result
}

// compareSpecificity orders longer specifiers first, then lexically, so the
// longest prefix is met first when reading a map top to bottom.
func compareSpecificity(a string, b string) int {
	if len(a) != len(b) {
		return len(b) - len(a)
	}
	return strings.Compare(a, b)
}

func sortedBySpecificity[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareSpecificity(keys[i], keys[j]) < 0
	})
	return keys
}

// ---------------- serialization ----------------

type orderedMappings map[string]string

func (m orderedMappings) MarshalJSONObject(enc *gojay.Encoder) {
	for _, from := range sortedBySpecificity(m) {
		enc.StringKey(from, m[from])
	}
}

func (m orderedMappings) IsNil() bool {
	return m == nil
}

type orderedScopes map[string]map[string]string

func (s orderedScopes) MarshalJSONObject(enc *gojay.Encoder) {
	for _, scope := range sortedBySpecificity(s) {
		enc.ObjectKey(scope, orderedMappings(s[scope]))
	}
}

func (s orderedScopes) IsNil() bool {
	return s == nil
}

func (m ImportMap) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("imports", orderedMappings(nonNilMappings(m.Imports)))
	scopes := m.Scopes
	if scopes == nil {
		scopes = map[string]map[string]string{}
	}
	enc.ObjectKey("scopes", orderedScopes(scopes))
}

func (m ImportMap) IsNil() bool {
	return false
}

func nonNilMappings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Bytes renders the import map sorted by specificity with 2 space indent.
func (m ImportMap) Bytes() ([]byte, error) {
	compact, err := gojay.MarshalJSONObject(m)
	if err != nil {
		return nil, errors.Wrap(err, "encoding import map")
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, errors.Wrap(err, "indenting import map")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func marshalIndent(value interface{}) ([]byte, error) {
	return json.MarshalIndent(value, "", "  ")
}

// ---------------- compose ----------------

// ComposeImportMaps merges right over left.
func ComposeImportMaps(left ImportMap, right ImportMap) ImportMap {
	result := left.Clone()
	for from, to := range right.Imports {
		result.Imports[from] = to
	}
	for scope, mappings := range right.Scopes {
		scoped, ok := result.Scopes[scope]
		if !ok {
			scoped = map[string]string{}
			result.Scopes[scope] = scoped
		}
		for from, to := range mappings {
			scoped[from] = to
		}
	}
	return result
}

// ---------------- normalize / resolve ----------------

type normalizedMapping struct {
	from         string
	to           string
	originalFrom string
}

type normalizedScope struct {
	prefix        string
	originalScope string
	mappings      []normalizedMapping
}

// NormalizedImportMap is an import map with every relative address resolved
// against the project directory, ready for lookups.
type NormalizedImportMap struct {
	projectDir string
	imports    []normalizedMapping
	scopes     []normalizedScope
}

func isRelativeSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/") || specifier == "." || specifier == ".."
}

func normalizeSpecifierKey(specifier string, base string, projectDir string) string {
	if isRelativeSpecifier(specifier) {
		return resolvePath(specifier, base, projectDir)
	}
	return specifier
}

func normalizeAddress(address string, base string, projectDir string) string {
	if hasScheme(address) {
		return address
	}
	return resolvePath(address, base, projectDir)
}

func normalizeMappings(mappings map[string]string, projectDir string) []normalizedMapping {
	result := make([]normalizedMapping, 0, len(mappings))
	for from, to := range mappings {
		result = append(result, normalizedMapping{
			from:         normalizeSpecifierKey(from, projectDir, projectDir),
			to:           normalizeAddress(to, projectDir, projectDir),
			originalFrom: from,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return compareSpecificity(result[i].from, result[j].from) < 0
	})
	return result
}

func NormalizeImportMap(m ImportMap, projectDir string) *NormalizedImportMap {
	normalized := &NormalizedImportMap{
		projectDir: projectDir,
		imports:    normalizeMappings(m.Imports, projectDir),
	}
	for scope, mappings := range m.Scopes {
		normalized.scopes = append(normalized.scopes, normalizedScope{
			prefix:        normalizeAddress(scope, projectDir, projectDir),
			originalScope: scope,
			mappings:      normalizeMappings(mappings, projectDir),
		})
	}
	sort.Slice(normalized.scopes, func(i, j int) bool {
		return compareSpecificity(normalized.scopes[i].prefix, normalized.scopes[j].prefix) < 0
	})
	return normalized
}

func applyMappings(specifier string, mappings []normalizedMapping) (normalizedMapping, string, bool) {
	for _, mapping := range mappings {
		if mapping.from == specifier {
			return mapping, mapping.to, true
		}
	}
	// mappings are sorted longest first, the first prefix hit is the best one
	for _, mapping := range mappings {
		if strings.HasSuffix(mapping.from, "/") && strings.HasPrefix(specifier, mapping.from) {
			return mapping, mapping.to + specifier[len(mapping.from):], true
		}
	}
	return normalizedMapping{}, "", false
}

// Resolve resolves specifier imported by importer (an absolute internal
// path). onMapping receives the scope ("" for top-level) and the key of the
// mapping used, as written in the import map.
func (n *NormalizedImportMap) Resolve(specifier string, importer string, onMapping func(scope string, from string)) (string, error) {
	key := specifier
	bare := true
	if isRelativeSpecifier(specifier) {
		key = resolvePath(specifier, importer, n.projectDir)
		bare = false
	} else if hasScheme(specifier) {
		bare = false
	}

	for _, scope := range n.scopes {
		if importer != scope.prefix && !strings.HasPrefix(importer, scope.prefix) {
			continue
		}
		if mapping, resolved, ok := applyMappings(key, scope.mappings); ok {
			if onMapping != nil {
				onMapping(scope.originalScope, mapping.originalFrom)
			}
			return resolved, nil
		}
	}
	if mapping, resolved, ok := applyMappings(key, n.imports); ok {
		if onMapping != nil {
			onMapping("", mapping.originalFrom)
		}
		return resolved, nil
	}
	if bare {
		return "", ErrBareSpecifier
	}
	return key, nil
}
