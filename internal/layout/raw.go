package layout

import (
	"github.com/any-hub/repohub/internal/coordinates"
	"github.com/any-hub/repohub/internal/errs"
)

const (
	RawPath = "path"

	rawName = "Raw"
)

var rawSchema = &coordinates.Schema{
	Layout:   rawName,
	Fields:   []string{RawPath},
	Identity: []string{RawPath},
}

// Raw 不解释路径结构：坐标即路径本身，没有版本也没有元数据。
type Raw struct{}

func (Raw) Descriptor() Descriptor {
	return Descriptor{Name: rawName, Alias: "raw", Fields: rawSchema.Fields}
}

func (Raw) Schema() *coordinates.Schema { return rawSchema }

func (Raw) IsMetadataPath(string) bool { return false }

func (Raw) ValidatePath(rel string) error {
	_, err := baseValidate(rawName, rel)
	return err
}

func (r Raw) ParseCoordinates(rel string) (coordinates.Coordinates, error) {
	clean, err := baseValidate(rawName, rel)
	if err != nil {
		return coordinates.Coordinates{}, err
	}
	return coordinates.New(rawSchema, map[string]string{RawPath: clean})
}

func (r Raw) CoordinatesToPath(c coordinates.Coordinates) (string, error) {
	if c.Layout() != rawName {
		return "", errs.InvalidPath(rawName, c.String(), "coordinates belong to another layout")
	}
	raw := c.Get(RawPath)
	clean, err := baseValidate(rawName, raw)
	if err != nil {
		return "", err
	}
	if clean != raw {
		return "", errs.InvalidPath(rawName, raw, "path is not normalized, expected "+clean)
	}
	return clean, nil
}
