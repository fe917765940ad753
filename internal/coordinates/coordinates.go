// Package coordinates 描述构件在某个生态内的身份：一组有序的命名字段加一个可比较的版本。
package coordinates

import (
	"fmt"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// Version 是版本字符串在特定生态下的可比较形式。同一 layout 产生的值之间 Compare 必须是全序。
type Version interface {
	Compare(other Version) int
	String() string
}

// Schema 描述 layout 能识别的字段，每个 layout 只构建一次，由其全部 Coordinates 共享。
type Schema struct {
	Layout string
	// Fields 是可识别坐标名的有序列表。
	Fields []string
	// Identity 字段先于版本参与比较。
	Identity []string
	// VersionField 是保存版本的字段名，无版本的 layout 为空。
	VersionField string
	ParseVersion func(string) Version
	// PURL 把坐标映射为 package URL，生态没有 purl 类型时为 nil。
	PURL func(Coordinates) *packageurl.PackageURL
}

func (s *Schema) index(name string) int {
	for i, f := range s.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Coordinates 不可变，用 With 派生修改后的副本。
type Coordinates struct {
	schema  *Schema
	values  []string
	version Version
}

// New 按 schema 从 values 构建坐标，未知字段名直接拒绝。
func New(schema *Schema, values map[string]string) (Coordinates, error) {
	if schema == nil {
		return Coordinates{}, fmt.Errorf("coordinates: nil schema")
	}
	c := Coordinates{schema: schema, values: make([]string, len(schema.Fields))}
	for name, value := range values {
		idx := schema.index(name)
		if idx < 0 {
			return Coordinates{}, fmt.Errorf("coordinates: %s does not define field %q", schema.Layout, name)
		}
		c.values[idx] = value
	}
	c.version = c.deriveVersion()
	return c, nil
}

// MustNew 遇到未知字段时 panic，用于测试与静态表。
func MustNew(schema *Schema, values map[string]string) Coordinates {
	c, err := New(schema, values)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Coordinates) deriveVersion() Version {
	if c.schema.VersionField == "" || c.schema.ParseVersion == nil {
		return nil
	}
	raw := c.Get(c.schema.VersionField)
	if raw == "" {
		return nil
	}
	return c.schema.ParseVersion(raw)
}

// IsZero 判断 c 是否为零值。
func (c Coordinates) IsZero() bool {
	return c.schema == nil
}

// Layout 返回所属 layout 名。
func (c Coordinates) Layout() string {
	if c.schema == nil {
		return ""
	}
	return c.schema.Layout
}

// Get 返回 name 的值，未设置或未知时返回 ""。
func (c Coordinates) Get(name string) string {
	if c.schema == nil {
		return ""
	}
	if idx := c.schema.index(name); idx >= 0 {
		return c.values[idx]
	}
	return ""
}

// Fields 按 schema 顺序返回非空的 name/value 对。
func (c Coordinates) Fields() [][2]string {
	if c.schema == nil {
		return nil
	}
	out := make([][2]string, 0, len(c.values))
	for i, name := range c.schema.Fields {
		if c.values[i] != "" {
			out = append(out, [2]string{name, c.values[i]})
		}
	}
	return out
}

// With 返回把 name 设为 value 的副本，需要时重新解析版本。
func (c Coordinates) With(name, value string) (Coordinates, error) {
	if c.schema == nil {
		return Coordinates{}, fmt.Errorf("coordinates: zero value")
	}
	idx := c.schema.index(name)
	if idx < 0 {
		return Coordinates{}, fmt.Errorf("coordinates: %s does not define field %q", c.schema.Layout, name)
	}
	next := Coordinates{schema: c.schema, values: append([]string(nil), c.values...)}
	next.values[idx] = value
	next.version = next.deriveVersion()
	return next, nil
}

// Version 返回解析后的版本，layout 或值没有版本时为 nil。
func (c Coordinates) Version() Version {
	return c.version
}

// Equal 判断同一 layout 下逐字段相等。
func (c Coordinates) Equal(other Coordinates) bool {
	if c.Layout() != other.Layout() || len(c.values) != len(other.values) {
		return false
	}
	for i := range c.values {
		if c.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

// Compare 先比 identity 字段，再比版本（无版本在前），最后比全部字段，
// 保证 Compare(a, b) == 0 当且仅当 a.Equal(b)。
func Compare(a, b Coordinates) int {
	if r := strings.Compare(a.Layout(), b.Layout()); r != 0 {
		return r
	}
	if a.schema == nil {
		return 0
	}
	for _, name := range a.schema.Identity {
		if r := strings.Compare(a.Get(name), b.Get(name)); r != 0 {
			return r
		}
	}
	if r := compareVersions(a.version, b.version); r != 0 {
		return r
	}
	for i := range a.values {
		if r := strings.Compare(a.values[i], b.values[i]); r != 0 {
			return r
		}
	}
	return 0
}

func compareVersions(a, b Version) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(b)
}

// PURL 渲染 package URL，layout 不支持时返回 ""。
func (c Coordinates) PURL() string {
	if c.schema == nil || c.schema.PURL == nil {
		return ""
	}
	p := c.schema.PURL(c)
	if p == nil {
		return ""
	}
	return p.ToString()
}

func (c Coordinates) String() string {
	parts := make([]string, 0, len(c.values))
	for _, kv := range c.Fields() {
		parts = append(parts, kv[0]+"="+kv[1])
	}
	return c.Layout() + "{" + strings.Join(parts, ", ") + "}"
}
