package main

import (
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// NormalizePathForInternal converts any OS path into a canonical internal
// representation using forward slashes and cleaned path components.
// Examples:
// - "C:\\project\\src\\file.ts" -> "C:/project/src/file.ts"
// - "./a/../b/" -> "b"
func NormalizePathForInternal(p string) string {
	if runtime.GOOS != "windows" {
		return p
	}
	if p == "" {
		return ""
	}
	cleaned := filepath.Clean(p)
	s := filepath.ToSlash(cleaned)
	// Trim trailing slash except when path is root like "/" or "C:/"
	if len(s) > 1 && strings.HasSuffix(s, "/") {
		s = strings.TrimRight(s, "/")
	}
	return s
}

// DenormalizePathForOS converts an internal forward-slash path back to the
// OS-native representation for os.* calls.
func DenormalizePathForOS(internal string) string {
	if runtime.GOOS != "windows" {
		return internal
	}
	if internal == "" {
		return ""
	}
	return filepath.FromSlash(internal)
}

var schemeRegexp = regexp.MustCompile(`^[a-zA-Z]{2,}:`)

// hasScheme reports whether the address is an absolute url such as
// "https://cdn.example.com/x.js" or "node:fs".
func hasScheme(address string) bool {
	return schemeRegexp.MatchString(address)
}

func ensureTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// dirOf returns the directory of an internal path with a trailing slash.
// A path already ending with "/" is its own directory.
func dirOf(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return ensureTrailingSlash(path.Dir(p))
}

// resolvePath resolves specifier against the file (or directory, when it ends
// with "/") at base, the way a relative url is resolved against a file url.
// Leading "/" is the project directory. A trailing slash is preserved.
func resolvePath(specifier string, base string, projectDir string) string {
	if specifier == "" {
		return base
	}
	var joined string
	if strings.HasPrefix(specifier, "/") {
		joined = path.Join(projectDir, specifier)
	} else {
		joined = path.Join(dirOf(base), specifier)
	}
	if strings.HasSuffix(specifier, "/") ||
		specifier == "." || specifier == ".." ||
		strings.HasSuffix(specifier, "/.") || strings.HasSuffix(specifier, "/..") {
		return ensureTrailingSlash(joined)
	}
	return joined
}

// relativePath returns target relative to dir using "/" separators.
// The same directory gives "", a trailing slash on target is kept.
func relativePath(target string, dir string) string {
	trailing := strings.HasSuffix(target, "/")
	rel, err := filepath.Rel(DenormalizePathForOS(strings.TrimSuffix(dir, "/")), DenormalizePathForOS(strings.TrimSuffix(target, "/")))
	if err != nil {
		return target
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return ""
	}
	if trailing {
		return rel + "/"
	}
	return rel
}

// isInsideDir reports whether p is dir itself or located under it.
func isInsideDir(p string, dir string) bool {
	dir = ensureTrailingSlash(dir)
	return p == strings.TrimSuffix(dir, "/") || strings.HasPrefix(p, dir)
}

// moveMappingValue rewrites an address written relative to fromFile so that
// it becomes relative to the project directory.
func moveMappingValue(address string, fromFile string, projectDir string) string {
	if hasScheme(address) || strings.HasPrefix(address, "/") {
		return address
	}
	rel := relativePath(resolvePath(address, fromFile, projectDir), projectDir)
	if strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "./") {
		return rel
	}
	return "./" + rel
}

// toProjectRelative returns "./<p relative to project>", the form used for
// import map values and scope keys.
func toProjectRelative(p string, projectDir string) string {
	rel := relativePath(p, projectDir)
	if strings.HasPrefix(rel, "../") {
		return rel
	}
	return "./" + rel
}

// packageDirectoryFromPath finds the directory of the package owning p by
// looking at the last "node_modules/" segment. Scoped packages span two
// segments. Files outside node_modules give "" (the project itself).
func packageDirectoryFromPath(p string) string {
	idx := strings.LastIndex(p, "node_modules/")
	if idx == -1 {
		return ""
	}
	afterNodeModules := p[idx+len("node_modules/"):]
	parts := strings.Split(afterNodeModules, "/")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	if strings.HasPrefix(parts[0], "@") {
		if len(parts) < 2 || parts[1] == "" {
			return ""
		}
		return p[:idx] + "node_modules/" + parts[0] + "/" + parts[1] + "/"
	}
	return p[:idx] + "node_modules/" + parts[0] + "/"
}

// packageNameFromScope returns what follows the last "node_modules/" of a
// scope, "./node_modules/foo/node_modules/@a/b/" gives "@a/b/".
func packageNameFromScope(scope string) string {
	idx := strings.LastIndex(scope, "node_modules/")
	if idx == -1 {
		return strings.TrimPrefix(scope, "./")
	}
	return scope[idx+len("node_modules/"):]
}
