// Package checksum 在字节流上计算 sha1/md5 摘要，并实现各 layout 共用的 sidecar 约定
// （<file>.sha1、<file>.md5）。
package checksum

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"strings"
)

// Algorithm 是摘要算法名，同时也是 sidecar 扩展名。
type Algorithm string

const (
	SHA1 Algorithm = "sha1"
	MD5  Algorithm = "md5"
)

// Preferred 是 sidecar 的查找顺序：先 sha1，再 md5。
var Preferred = []Algorithm{SHA1, MD5}

// Extension 返回带前导点的 sidecar 后缀。
func (a Algorithm) Extension() string {
	return "." + string(a)
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	default:
		return sha1.New()
	}
}

// Digests 把算法映射为小写十六进制摘要。
type Digests map[Algorithm]string

// Digester 把写入分发给每个算法各自的 hash。
type Digester struct {
	hashes map[Algorithm]hash.Hash
	order  []Algorithm
}

// NewDigester 返回 algs 的 Digester，不传参数时使用 Preferred。
func NewDigester(algs ...Algorithm) *Digester {
	if len(algs) == 0 {
		algs = Preferred
	}
	d := &Digester{hashes: make(map[Algorithm]hash.Hash, len(algs))}
	for _, alg := range algs {
		if _, ok := d.hashes[alg]; ok {
			continue
		}
		d.hashes[alg] = alg.newHash()
		d.order = append(d.order, alg)
	}
	return d
}

func (d *Digester) Write(p []byte) (int, error) {
	for _, alg := range d.order {
		d.hashes[alg].Write(p)
	}
	return len(p), nil
}

// Sum 返回目前已写入内容的十六进制摘要。
func (d *Digester) Sum() Digests {
	out := make(Digests, len(d.order))
	for _, alg := range d.order {
		out[alg] = hex.EncodeToString(d.hashes[alg].Sum(nil))
	}
	return out
}

// ParseSidecar 从 sidecar 内容中取出摘要。远端 sidecar 常写成 "<hex>  <filename>"，只保留第一个字段。
func ParseSidecar(body []byte) string {
	fields := bytes.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(string(fields[0]))
}

// SidecarPath 返回 path 的 sidecar 位置。
func SidecarPath(path string, alg Algorithm) string {
	return path + alg.Extension()
}

// IsChecksumPath 判断 path 本身是否为 sidecar。
func IsChecksumPath(path string) bool {
	_, ok := AlgorithmOf(path)
	return ok
}

// AlgorithmOf 返回 path 扩展名对应的算法。
func AlgorithmOf(path string) (Algorithm, bool) {
	for _, alg := range Preferred {
		if strings.HasSuffix(path, alg.Extension()) {
			return alg, true
		}
	}
	return "", false
}
