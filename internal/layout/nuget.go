package layout

import (
	"path"
	"strings"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/errs"
)

const (
	NuGetID      = "id"
	NuGetVersion = "version"
	NuGetType    = "type"

	nugetName     = "NuGet"
	nugetIndex    = "index.json"
	nugetPackage  = "nupkg"
	nugetManifest = "nuspec"
)

var nugetSchema = &coordinates.Schema{
	Layout:       nugetName,
	Fields:       []string{NuGetID, NuGetVersion, NuGetType},
	Identity:     []string{NuGetID},
	VersionField: NuGetVersion,
	ParseVersion: parseNuGetVersion,
	PURL: func(c coordinates.Coordinates) *packageurl.PackageURL {
		return packageurl.NewPackageURL("nuget", "", c.Get(NuGetID), c.Get(NuGetVersion), nil, "")
	},
}

// NuGet 实现 id/version/id.version.{nupkg,nuspec} 布局，版本列表位于 id/index.json。
type NuGet struct{}

func (NuGet) Descriptor() Descriptor {
	return Descriptor{Name: nugetName, Alias: "nuget-v3", Fields: nugetSchema.Fields}
}

func (NuGet) Schema() *coordinates.Schema { return nugetSchema }

func (NuGet) IsMetadataPath(rel string) bool {
	return path.Base(rel) == nugetIndex
}

func (NuGet) ValidatePath(rel string) error {
	_, err := baseValidate(nugetName, rel)
	return err
}

func (n NuGet) ParseCoordinates(rel string) (coordinates.Coordinates, error) {
	if err := n.ValidatePath(rel); err != nil {
		return coordinates.Coordinates{}, err
	}
	clean, _ := CleanPath(nugetName, rel)
	segs := splitSegments(clean)
	if len(segs) != 3 {
		return coordinates.Coordinates{}, errs.InvalidPath(nugetName, rel, "expected id/version/id.version.nupkg")
	}
	id, version, file := segs[0], segs[1], segs[2]
	prefix := id + "." + version + "."
	if !strings.HasPrefix(file, prefix) {
		return coordinates.Coordinates{}, errs.InvalidPath(nugetName, rel, "file name does not match id.version")
	}
	kind := strings.TrimPrefix(file, prefix)
	if kind != nugetPackage && kind != nugetManifest {
		return coordinates.Coordinates{}, errs.InvalidPath(nugetName, rel, "unsupported package type "+kind)
	}
	return coordinates.New(nugetSchema, map[string]string{
		NuGetID:      id,
		NuGetVersion: version,
		NuGetType:    kind,
	})
}

func (n NuGet) CoordinatesToPath(c coordinates.Coordinates) (string, error) {
	if c.Layout() != nugetName {
		return "", errs.InvalidPath(nugetName, c.String(), "coordinates belong to another layout")
	}
	id, version, kind := c.Get(NuGetID), c.Get(NuGetVersion), c.Get(NuGetType)
	if id == "" || version == "" || kind == "" {
		return "", errs.InvalidPath(nugetName, c.String(), "id, version and type are required")
	}
	if kind != nugetPackage && kind != nugetManifest {
		return "", errs.InvalidPath(nugetName, c.String(), "unsupported package type "+kind)
	}
	if strings.Contains(id, "/") || strings.Contains(version, "/") {
		return "", errs.InvalidPath(nugetName, c.String(), "illegal character in coordinates")
	}
	rel := path.Join(id, version, id+"."+version+"."+kind)
	return canonicalPath(n, c, rel)
}
