package layout

import (
	"path"
	"strings"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/errs"
)

const (
	NPMScope     = "scope"
	NPMName      = "name"
	NPMVersion   = "version"
	NPMExtension = "extension"

	npmName         = "npm"
	npmMetadataFile = "package.json"
	npmTarballDir   = "-"
)

var npmSchema = &coordinates.Schema{
	Layout:       npmName,
	Fields:       []string{NPMScope, NPMName, NPMVersion, NPMExtension},
	Identity:     []string{NPMScope, NPMName},
	VersionField: NPMVersion,
	ParseVersion: parseSemverVersion,
	PURL: func(c coordinates.Coordinates) *packageurl.PackageURL {
		return packageurl.NewPackageURL("npm", c.Get(NPMScope), c.Get(NPMName), c.Get(NPMVersion), nil, "")
	},
}

// NPM 实现 [@scope/]name/-/name-version.tgz 布局；包元数据落盘为 [@scope/]name/package.json。
type NPM struct{}

func (NPM) Descriptor() Descriptor {
	return Descriptor{Name: npmName, Alias: "npmjs", Fields: npmSchema.Fields}
}

func (NPM) Schema() *coordinates.Schema { return npmSchema }

// splitPackage 拆出包名部分（带 scope 时占两段）与剩余段。
func (NPM) splitPackage(segs []string) (scope, name string, rest []string, ok bool) {
	if len(segs) == 0 {
		return "", "", nil, false
	}
	if strings.HasPrefix(segs[0], "@") {
		if len(segs) < 2 || len(segs[0]) == 1 {
			return "", "", nil, false
		}
		return segs[0], segs[1], segs[2:], true
	}
	return "", segs[0], segs[1:], true
}

func (n NPM) IsMetadataPath(rel string) bool {
	clean, err := CleanPath(npmName, rel)
	if err != nil || clean == "" {
		return false
	}
	_, name, rest, ok := n.splitPackage(splitSegments(clean))
	if !ok || name == "" {
		return false
	}
	switch len(rest) {
	case 0:
		return true
	case 1:
		return rest[0] == npmMetadataFile
	}
	return false
}

func (NPM) ValidatePath(rel string) error {
	clean, err := baseValidate(npmName, rel)
	if err != nil {
		return err
	}
	for _, seg := range splitSegments(clean) {
		if strings.ContainsAny(seg, " \t") {
			return errs.InvalidPath(npmName, rel, "whitespace not allowed")
		}
	}
	return nil
}

func (n NPM) ParseCoordinates(rel string) (coordinates.Coordinates, error) {
	if err := n.ValidatePath(rel); err != nil {
		return coordinates.Coordinates{}, err
	}
	clean, _ := CleanPath(npmName, rel)
	scope, name, rest, ok := n.splitPackage(splitSegments(clean))
	if !ok || len(rest) != 2 || rest[0] != npmTarballDir {
		return coordinates.Coordinates{}, errs.InvalidPath(npmName, rel, "expected [@scope/]name/-/name-version.tgz")
	}
	file := rest[1]
	prefix := name + "-"
	if !strings.HasPrefix(file, prefix) {
		return coordinates.Coordinates{}, errs.InvalidPath(npmName, rel, "tarball name does not match package")
	}
	base := strings.TrimPrefix(file, prefix)
	ext := path.Ext(base)
	version := strings.TrimSuffix(base, ext)
	if ext != ".tgz" || version == "" {
		return coordinates.Coordinates{}, errs.InvalidPath(npmName, rel, "expected .tgz tarball")
	}
	return coordinates.New(npmSchema, map[string]string{
		NPMScope:     scope,
		NPMName:      name,
		NPMVersion:   version,
		NPMExtension: strings.TrimPrefix(ext, "."),
	})
}

func (n NPM) CoordinatesToPath(c coordinates.Coordinates) (string, error) {
	if c.Layout() != npmName {
		return "", errs.InvalidPath(npmName, c.String(), "coordinates belong to another layout")
	}
	scope, name, version := c.Get(NPMScope), c.Get(NPMName), c.Get(NPMVersion)
	ext := c.Get(NPMExtension)
	if name == "" || version == "" || ext == "" {
		return "", errs.InvalidPath(npmName, c.String(), "name, version and extension are required")
	}
	if ext != "tgz" {
		return "", errs.InvalidPath(npmName, c.String(), "only tgz tarballs are supported")
	}
	if scope != "" && (!strings.HasPrefix(scope, "@") || strings.Contains(scope, "/")) {
		return "", errs.InvalidPath(npmName, c.String(), "scope must look like @scope")
	}
	if strings.Contains(name, "/") || strings.Contains(version, "/") {
		return "", errs.InvalidPath(npmName, c.String(), "illegal character in coordinates")
	}
	rel := path.Join(scope, name, npmTarballDir, name+"-"+version+"."+ext)
	return canonicalPath(n, c, rel)
}

// RemotePath 把本地 package.json 映射回 registry 的包文档地址。
func (n NPM) RemotePath(rel string) string {
	if !n.IsMetadataPath(rel) {
		return rel
	}
	clean, _ := CleanPath(npmName, rel)
	return strings.TrimSuffix(clean, "/"+npmMetadataFile)
}

// LocalPath 将裸包名请求映射到本地 package.json，避免与 tarball 目录同名冲突。
func (n NPM) LocalPath(rel string) string {
	clean, err := CleanPath(npmName, rel)
	if err != nil || !n.IsMetadataPath(clean) {
		return rel
	}
	if strings.HasSuffix(clean, "/"+npmMetadataFile) {
		return clean
	}
	return clean + "/" + npmMetadataFile
}
