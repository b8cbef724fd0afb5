package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StandardiseDirPath returns the internal form of a directory: forward
// slashes and a single trailing slash.
func StandardiseDirPath(cwd string) string {
	return ensureTrailingSlash(NormalizePathForInternal(cwd))
}

func ResolveAbsoluteCwd(cwd string) string {
	if filepath.IsAbs(cwd) {
		return StandardiseDirPath(cwd)
	} else {
		binaryExecDir, _ := os.Getwd()
		return StandardiseDirPath(filepath.Join(binaryExecDir, cwd))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Helpers over values decoded from package.json into interface{}.

func asObject(value interface{}) (map[string]interface{}, bool) {
	obj, ok := value.(map[string]interface{})
	return obj, ok && obj != nil
}

func asString(value interface{}) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}

func hasExtension(p string) bool {
	base := p[strings.LastIndex(p, "/")+1:]
	return filepath.Ext(base) != ""
}
