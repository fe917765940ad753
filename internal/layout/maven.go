package layout

import (
	"path"
	"regexp"
	"strings"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/errs"
)

const (
	MavenGroupID    = "groupId"
	MavenArtifactID = "artifactId"
	MavenVersion    = "version"
	MavenClassifier = "classifier"
	MavenExtension  = "extension"

	mavenName = "Maven 2"
)

// 时间戳快照：1.0-20240101.120000-3
var (
	mavenTimestampPattern = regexp.MustCompile(`^(\d{8}\.\d{6}-\d+)`)
	mavenTimestampSuffix  = regexp.MustCompile(`-\d{8}\.\d{6}-\d+$`)
)

var mavenSchema = &coordinates.Schema{
	Layout:       mavenName,
	Fields:       []string{MavenGroupID, MavenArtifactID, MavenVersion, MavenClassifier, MavenExtension},
	Identity:     []string{MavenGroupID, MavenArtifactID},
	VersionField: MavenVersion,
	ParseVersion: parseMavenVersion,
	PURL: func(c coordinates.Coordinates) *packageurl.PackageURL {
		var qualifiers packageurl.Qualifiers
		if classifier := c.Get(MavenClassifier); classifier != "" {
			qualifiers = append(qualifiers, packageurl.Qualifier{Key: "classifier", Value: classifier})
		}
		if ext := c.Get(MavenExtension); ext != "" && ext != "jar" {
			qualifiers = append(qualifiers, packageurl.Qualifier{Key: "type", Value: ext})
		}
		return packageurl.NewPackageURL("maven", c.Get(MavenGroupID), c.Get(MavenArtifactID), c.Get(MavenVersion), qualifiers, "")
	},
}

// Maven2 实现 groupId/artifactId/version/artifactId-version[-classifier].extension 布局。
type Maven2 struct{}

func (Maven2) Descriptor() Descriptor {
	return Descriptor{Name: mavenName, Alias: "maven-2", Fields: mavenSchema.Fields}
}

func (Maven2) Schema() *coordinates.Schema { return mavenSchema }

// IsMetadataPath 识别 maven-metadata*.xml 与 archetype-catalog.xml；其 checksum 文件不算元数据。
func (Maven2) IsMetadataPath(rel string) bool {
	name := path.Base(rel)
	if name == "archetype-catalog.xml" {
		return true
	}
	return strings.HasPrefix(name, "maven-metadata") && strings.HasSuffix(name, ".xml")
}

func (m Maven2) ValidatePath(rel string) error {
	clean, err := baseValidate(mavenName, rel)
	if err != nil {
		return err
	}
	for _, seg := range splitSegments(clean) {
		if strings.HasPrefix(seg, ".") {
			return errs.InvalidPath(mavenName, rel, "hidden segment not allowed")
		}
	}
	return nil
}

func (m Maven2) ParseCoordinates(rel string) (coordinates.Coordinates, error) {
	if err := m.ValidatePath(rel); err != nil {
		return coordinates.Coordinates{}, err
	}
	clean, _ := CleanPath(mavenName, rel)
	if m.IsMetadataPath(clean) {
		return coordinates.Coordinates{}, errs.InvalidPath(mavenName, rel, "metadata file has no artifact coordinates")
	}
	segs := splitSegments(clean)
	if len(segs) < 4 {
		return coordinates.Coordinates{}, errs.InvalidPath(mavenName, rel, "expected groupId/artifactId/version/file")
	}
	n := len(segs)
	artifactID, versionDir, file := segs[n-3], segs[n-2], segs[n-1]
	groupID := strings.Join(segs[:n-3], ".")

	version, rest, ok := splitMavenFile(artifactID, versionDir, file)
	if !ok {
		return coordinates.Coordinates{}, errs.InvalidPath(mavenName, rel, "file name does not match artifactId-version")
	}

	var classifier, extension string
	switch {
	case strings.HasPrefix(rest, "."):
		extension = rest[1:]
	case strings.HasPrefix(rest, "-"):
		c, ext, found := strings.Cut(rest[1:], ".")
		if !found || c == "" {
			return coordinates.Coordinates{}, errs.InvalidPath(mavenName, rel, "classifier without extension")
		}
		classifier, extension = c, ext
	default:
		return coordinates.Coordinates{}, errs.InvalidPath(mavenName, rel, "missing extension")
	}
	if extension == "" {
		return coordinates.Coordinates{}, errs.InvalidPath(mavenName, rel, "missing extension")
	}

	return coordinates.New(mavenSchema, map[string]string{
		MavenGroupID:    groupID,
		MavenArtifactID: artifactID,
		MavenVersion:    version,
		MavenClassifier: classifier,
		MavenExtension:  extension,
	})
}

// splitMavenFile 返回文件名中的真实版本（可能是时间戳快照）以及版本之后的剩余部分。
func splitMavenFile(artifactID, versionDir, file string) (string, string, bool) {
	prefix := artifactID + "-" + versionDir
	if strings.HasPrefix(file, prefix) {
		return versionDir, file[len(prefix):], true
	}
	if !strings.HasSuffix(versionDir, "-SNAPSHOT") {
		return "", "", false
	}
	base := strings.TrimSuffix(versionDir, "SNAPSHOT")
	snapshotPrefix := artifactID + "-" + base
	if !strings.HasPrefix(file, snapshotPrefix) {
		return "", "", false
	}
	tail := file[len(snapshotPrefix):]
	ts := mavenTimestampPattern.FindString(tail)
	if ts == "" {
		return "", "", false
	}
	return base + ts, tail[len(ts):], true
}

// mavenBaseVersion 将时间戳快照版本还原为目录使用的 -SNAPSHOT 形式。
func mavenBaseVersion(version string) string {
	if loc := mavenTimestampSuffix.FindStringIndex(version); loc != nil {
		return version[:loc[0]] + "-SNAPSHOT"
	}
	return version
}

func (m Maven2) CoordinatesToPath(c coordinates.Coordinates) (string, error) {
	if c.Layout() != mavenName {
		return "", errs.InvalidPath(mavenName, c.String(), "coordinates belong to another layout")
	}
	groupID := c.Get(MavenGroupID)
	artifactID := c.Get(MavenArtifactID)
	version := c.Get(MavenVersion)
	classifier := c.Get(MavenClassifier)
	extension := c.Get(MavenExtension)
	if groupID == "" || artifactID == "" || version == "" || extension == "" {
		return "", errs.InvalidPath(mavenName, c.String(), "groupId, artifactId, version and extension are required")
	}
	if strings.Contains(groupID, "/") {
		return "", errs.InvalidPath(mavenName, c.String(), "groupId segments are separated by dots")
	}
	if strings.ContainsAny(artifactID, "/") || strings.ContainsAny(version, "/") ||
		strings.ContainsAny(classifier, "./") || strings.ContainsAny(extension, "/") {
		return "", errs.InvalidPath(mavenName, c.String(), "illegal character in coordinates")
	}

	file := artifactID + "-" + version
	if classifier != "" {
		file += "-" + classifier
	}
	file += "." + extension

	rel := path.Join(strings.ReplaceAll(groupID, ".", "/"), artifactID, mavenBaseVersion(version), file)
	return canonicalPath(m, c, rel)
}
