package remote

import (
	"context"
	"strings"

	"github.com/any-hub/repohub/internal/checksum"
	"github.com/any-hub/repohub/internal/layout"
	"github.com/any-hub/repohub/internal/repository"
)

// sidecarLimit 限制远端校验和文件的读取量。
const sidecarLimit = 1024

// URL 把代理仓库的本地相对路径映射为上游 URL，并应用 layout 的远端路径映射。
func URL(repo *repository.Repository, rel string) string {
	remoteRel := rel
	if provider := repo.LayoutProvider(); provider != nil {
		remoteRel = layout.RemotePath(provider, rel)
	}
	return strings.TrimSuffix(repo.RemoteURL(), "/") + "/" + strings.TrimPrefix(remoteRel, "/")
}

// Checksum 从仓库上游获取 rel 的 alg sidecar，返回归一化后的摘要。
func (f *Fetcher) Checksum(ctx context.Context, repo *repository.Repository, rel string, alg checksum.Algorithm) (string, error) {
	target := URL(repo, checksum.SidecarPath(rel, alg))
	body, err := f.GetSmall(ctx, repo.RemoteURL(), target, repo.Credentials(), sidecarLimit)
	if err != nil {
		return "", err
	}
	return checksum.ParseSidecar(body), nil
}
