package main

import (
	"encoding/json"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
)

var (
	ErrPackageNotFound = errors.New("package.json not found")
	ErrPackageSyntax   = errors.New("package.json syntax error")
)

// PackageJson is a parsed package.json. Path is the internal path of the file.
type PackageJson struct {
	Path   string
	Object map[string]interface{}
}

func (p *PackageJson) Dir() string {
	return dirOf(p.Path)
}

func (p *PackageJson) Name() (string, bool) {
	return asString(p.Object["name"])
}

func (p *PackageJson) Version() string {
	return stringField(p.Object, "version")
}

// PackageManualOverrides patches package.json files by "name",
// "name@version" or "name@<semver range>".
type PackageManualOverrides map[string]map[string]interface{}

func readPackageFile(packageFile string) (*PackageJson, error) {
	content, err := os.ReadFile(DenormalizePathForOS(packageFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, ErrPackageNotFound
		}
		return nil, errors.Wrapf(err, "reading %s", packageFile)
	}
	var object map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(content), &object); err != nil {
		return nil, errors.WithMessage(ErrPackageSyntax, err.Error())
	}
	if object == nil {
		return nil, errors.WithMessage(ErrPackageSyntax, "package.json must contain an object")
	}
	return &PackageJson{Path: packageFile, Object: object}, nil
}

// composeObject deep merges right over left. Nested objects present on both
// sides are merged, any other right value replaces the left one.
func composeObject(left map[string]interface{}, right map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(left)+len(right))
	for k, v := range left {
		result[k] = v
	}
	for k, rightValue := range right {
		leftObject, leftIsObject := asObject(result[k])
		rightObject, rightIsObject := asObject(rightValue)
		if leftIsObject && rightIsObject {
			result[k] = composeObject(leftObject, rightObject)
			continue
		}
		result[k] = rightValue
	}
	return result
}

func findPackageOverride(object map[string]interface{}, overrides PackageManualOverrides) (map[string]interface{}, bool) {
	if len(overrides) == 0 {
		return nil, false
	}
	name := stringField(object, "name")
	if name == "" {
		return nil, false
	}
	if override, ok := overrides[name]; ok {
		return override, true
	}
	version := stringField(object, "version")
	if version == "" {
		return nil, false
	}
	if override, ok := overrides[name+"@"+version]; ok {
		return override, true
	}
	parsedVersion, err := semver.NewVersion(version)
	if err != nil {
		return nil, false
	}
	for _, key := range sortedKeys(overrides) {
		rangePart, found := strings.CutPrefix(key, name+"@")
		if !found {
			continue
		}
		constraint, err := semver.NewConstraint(rangePart)
		if err != nil {
			continue
		}
		if constraint.Check(parsedVersion) {
			return overrides[key], true
		}
	}
	return nil, false
}

func applyPackageManualOverride(object map[string]interface{}, overrides PackageManualOverrides) map[string]interface{} {
	override, ok := findPackageOverride(object, overrides)
	if !ok {
		return object
	}
	return composeObject(object, override)
}

// PackageReader reads each package.json once per run.
type PackageReader struct {
	logger    *Logger
	overrides PackageManualOverrides
	cache     *MemoCache[*PackageJson]
}

func NewPackageReader(logger *Logger, overrides PackageManualOverrides) *PackageReader {
	return &PackageReader{
		logger:    logger,
		overrides: overrides,
		cache:     NewMemoCache[*PackageJson](),
	}
}

// Read returns ErrPackageNotFound or ErrPackageSyntax for the two expected
// failures. A syntax error is logged the first time the file is read.
func (r *PackageReader) Read(packageFile string) (*PackageJson, error) {
	return r.cache.Get(packageFile, func() (*PackageJson, error) {
		pkg, err := readPackageFile(packageFile)
		if err != nil {
			if errors.Is(err, ErrPackageSyntax) {
				r.logger.Error(packageSyntaxErrorWarning(packageFile, err).String())
			}
			return nil, err
		}
		pkg.Object = applyPackageManualOverride(pkg.Object, r.overrides)
		return pkg, nil
	})
}
