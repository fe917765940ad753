package layout

import (
	"path"
	"strings"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/errs"
)

const (
	PyPIDistribution = "distribution"
	PyPIVersion      = "version"
	PyPIBuild        = "build"
	PyPIPythonTag    = "languageImplementationVersion"
	PyPIABI          = "abi"
	PyPIPlatform     = "platform"
	PyPIPackaging    = "packaging"

	pypiName      = "PyPI"
	pypiSimpleDir = "simple"
	pypiWheel     = "whl"
)

var pypiSdistExtensions = []string{"tar.gz", "zip"}

var pypiSchema = &coordinates.Schema{
	Layout: pypiName,
	Fields: []string{
		PyPIDistribution, PyPIVersion, PyPIBuild, PyPIPythonTag, PyPIABI, PyPIPlatform, PyPIPackaging,
	},
	Identity:     []string{PyPIDistribution},
	VersionField: PyPIVersion,
	ParseVersion: parsePEP440Version,
	PURL: func(c coordinates.Coordinates) *packageurl.PackageURL {
		name := strings.ToLower(strings.ReplaceAll(c.Get(PyPIDistribution), "_", "-"))
		return packageurl.NewPackageURL("pypi", "", name, c.Get(PyPIVersion), nil, "")
	},
}

// PyPI 实现 distribution/version/<wheel|sdist> 布局；simple/ 下的索引页视为元数据。
type PyPI struct{}

func (PyPI) Descriptor() Descriptor {
	return Descriptor{Name: pypiName, Alias: "pypi", Fields: pypiSchema.Fields}
}

func (PyPI) Schema() *coordinates.Schema { return pypiSchema }

func (PyPI) IsMetadataPath(rel string) bool {
	clean, err := CleanPath(pypiName, rel)
	if err != nil {
		return false
	}
	if clean == pypiSimpleDir {
		return true
	}
	if _, ok := stripChecksum(clean); ok {
		return false
	}
	return strings.HasPrefix(clean, pypiSimpleDir+"/")
}

func (PyPI) ValidatePath(rel string) error {
	_, err := baseValidate(pypiName, rel)
	return err
}

func (p PyPI) ParseCoordinates(rel string) (coordinates.Coordinates, error) {
	if err := p.ValidatePath(rel); err != nil {
		return coordinates.Coordinates{}, err
	}
	clean, _ := CleanPath(pypiName, rel)
	if p.IsMetadataPath(clean) {
		return coordinates.Coordinates{}, errs.InvalidPath(pypiName, rel, "index page has no artifact coordinates")
	}
	segs := splitSegments(clean)
	if len(segs) != 3 {
		return coordinates.Coordinates{}, errs.InvalidPath(pypiName, rel, "expected distribution/version/file")
	}
	dist, version, file := segs[0], segs[1], segs[2]

	if strings.HasSuffix(file, "."+pypiWheel) {
		parts := strings.Split(strings.TrimSuffix(file, "."+pypiWheel), "-")
		if len(parts) != 5 && len(parts) != 6 {
			return coordinates.Coordinates{}, errs.InvalidPath(pypiName, rel, "malformed wheel file name")
		}
		if parts[0] != dist || parts[1] != version {
			return coordinates.Coordinates{}, errs.InvalidPath(pypiName, rel, "wheel name does not match directory")
		}
		values := map[string]string{
			PyPIDistribution: dist,
			PyPIVersion:      version,
			PyPIPackaging:    pypiWheel,
		}
		tags := parts[2:]
		if len(parts) == 6 {
			values[PyPIBuild] = parts[2]
			tags = parts[3:]
		}
		values[PyPIPythonTag], values[PyPIABI], values[PyPIPlatform] = tags[0], tags[1], tags[2]
		return coordinates.New(pypiSchema, values)
	}

	for _, ext := range pypiSdistExtensions {
		if file == dist+"-"+version+"."+ext {
			return coordinates.New(pypiSchema, map[string]string{
				PyPIDistribution: dist,
				PyPIVersion:      version,
				PyPIPackaging:    ext,
			})
		}
	}
	return coordinates.Coordinates{}, errs.InvalidPath(pypiName, rel, "unsupported distribution file")
}

func (p PyPI) CoordinatesToPath(c coordinates.Coordinates) (string, error) {
	if c.Layout() != pypiName {
		return "", errs.InvalidPath(pypiName, c.String(), "coordinates belong to another layout")
	}
	dist, version, packaging := c.Get(PyPIDistribution), c.Get(PyPIVersion), c.Get(PyPIPackaging)
	if dist == "" || version == "" {
		return "", errs.InvalidPath(pypiName, c.String(), "distribution and version are required")
	}
	if strings.Contains(dist, "/") || strings.Contains(version, "/") {
		return "", errs.InvalidPath(pypiName, c.String(), "illegal character in coordinates")
	}
	if dist == pypiSimpleDir {
		return "", errs.InvalidPath(pypiName, c.String(), "distribution name collides with the simple index")
	}

	var file string
	switch packaging {
	case pypiWheel:
		parts := []string{dist, version}
		if build := c.Get(PyPIBuild); build != "" {
			parts = append(parts, build)
		}
		parts = append(parts, c.Get(PyPIPythonTag), c.Get(PyPIABI), c.Get(PyPIPlatform))
		for _, part := range parts {
			if part == "" || strings.ContainsAny(part, "-/") {
				return "", errs.InvalidPath(pypiName, c.String(), "wheel tags must be non-empty and dash free")
			}
		}
		file = strings.Join(parts, "-") + "." + pypiWheel
	case "tar.gz", "zip":
		for _, tag := range []string{PyPIBuild, PyPIPythonTag, PyPIABI, PyPIPlatform} {
			if c.Get(tag) != "" {
				return "", errs.InvalidPath(pypiName, c.String(), "sdist carries no "+tag+" tag")
			}
		}
		file = dist + "-" + version + "." + packaging
	default:
		return "", errs.InvalidPath(pypiName, c.String(), "unsupported packaging "+packaging)
	}

	return canonicalPath(p, c, path.Join(dist, version, file))
}

// RemotePath 为 simple 索引补回结尾斜杠，PEP 503 要求目录形式的地址。
func (p PyPI) RemotePath(rel string) string {
	clean, err := CleanPath(pypiName, rel)
	if err != nil || !p.IsMetadataPath(clean) {
		return rel
	}
	if path.Ext(clean) == "" {
		return clean + "/"
	}
	return clean
}
