package routes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/repohub/internal/engine"
	"github.com/any-hub/repohub/internal/errs"
	"github.com/any-hub/repohub/internal/group"
	"github.com/any-hub/repohub/internal/repository"
	"github.com/any-hub/repohub/internal/vfs"
)

// RegisterDiagnosticRoutes 暴露 /-/ 下的诊断接口：仓库快照、路径属性、连接池统计与 Prometheus 指标。
// metrics 为 nil 时不挂载 /-/metrics。
func RegisterDiagnosticRoutes(app *fiber.App, eng *engine.Engine, metrics http.Handler) {
	if app == nil || eng == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/-/repositories", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"repositories": encodeRepositories(eng.Snapshot())})
	})

	// /-/attributes 只读本地状态，不会触发代理回源。
	app.Get("/-/attributes", func(c fiber.Ctx) error {
		p, err := eng.Resolve(c.Query("storage"), c.Query("repository"), c.Query("path"))
		if err != nil {
			return renderDiagnosticError(c, err)
		}
		attrs, err := eng.Attributes(c.Context(), p)
		if err != nil {
			return renderDiagnosticError(c, err)
		}
		return c.JSON(encodeAttributes(p.String(), attrs))
	})

	app.Get("/-/pools", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"pools":    eng.AllPoolStats(),
			"breakers": eng.BreakerStates(),
		})
	})

	app.Get("/-/pools/stats", func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}
		return c.JSON(eng.PoolStats(target))
	})

	if metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(metrics))
	}
}

type repositoryPayload struct {
	Storage   string   `json:"storage"`
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Layout    string   `json:"layout"`
	Status    string   `json:"status"`
	BaseDir   string   `json:"basedir"`
	RemoteURL string   `json:"remote_url,omitempty"`
	Members   []string `json:"members,omitempty"`
	// Hierarchy 是组成员按 children-first 展开后的查询顺序。
	Hierarchy []string       `json:"hierarchy,omitempty"`
	Cycles    []cyclePayload `json:"cycles,omitempty"`
	Missing   []string       `json:"missing,omitempty"`
}

type cyclePayload struct {
	Group  string `json:"group"`
	Member string `json:"member"`
}

func encodeRepositories(snap *repository.Snapshot) []repositoryPayload {
	repos := snap.Repositories()
	result := make([]repositoryPayload, 0, len(repos))
	for _, repo := range repos {
		item := repositoryPayload{
			Storage:   repo.StorageID(),
			ID:        repo.ID(),
			Type:      string(repo.Type()),
			Layout:    repo.Layout(),
			Status:    string(repo.Status()),
			BaseDir:   repo.BaseDir(),
			RemoteURL: repo.RemoteURL(),
		}
		if repo.Type() == repository.Group {
			for _, m := range repo.Members() {
				item.Members = append(item.Members, m.Key())
			}
			encodeTraversal(&item, group.Hierarchy(snap, repo))
		}
		result = append(result, item)
	}
	return result
}

func encodeTraversal(item *repositoryPayload, t group.Traversal) {
	for _, m := range t.Members {
		item.Hierarchy = append(item.Hierarchy, m.Key())
	}
	for _, c := range t.Cycles {
		item.Cycles = append(item.Cycles, cyclePayload{Group: c.Group, Member: c.Member})
	}
	for _, ref := range t.Missing {
		item.Missing = append(item.Missing, ref.Key())
	}
}

type attributesPayload struct {
	Path        string            `json:"path"`
	Exists      bool              `json:"exists"`
	Size        int64             `json:"size,omitempty"`
	ModTime     *time.Time        `json:"mod_time,omitempty"`
	Metadata    bool              `json:"metadata"`
	Coordinates map[string]string `json:"coordinates,omitempty"`
	PURL        string            `json:"purl,omitempty"`
	Checksums   map[string]string `json:"checksums,omitempty"`
}

func encodeAttributes(path string, attrs vfs.Attributes) attributesPayload {
	item := attributesPayload{
		Path:     path,
		Exists:   attrs.Exists,
		Size:     attrs.Size,
		Metadata: attrs.Metadata,
	}
	if attrs.Exists {
		mod := attrs.ModTime.UTC()
		item.ModTime = &mod
	}
	if !attrs.Coordinates.IsZero() {
		item.Coordinates = map[string]string{}
		for _, kv := range attrs.Coordinates.Fields() {
			item.Coordinates[kv[0]] = kv[1]
		}
		item.PURL = attrs.Coordinates.PURL()
	}
	for alg, sum := range attrs.Checksums {
		if item.Checksums == nil {
			item.Checksums = map[string]string{}
		}
		item.Checksums[string(alg)] = sum
	}
	return item
}

func renderDiagnosticError(c fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, errs.ErrInvalidPath):
		status, code = fiber.StatusBadRequest, "invalid_path"
	case errors.Is(err, errs.ErrOutOfService):
		status, code = fiber.StatusServiceUnavailable, "repository_out_of_service"
	case errors.Is(err, errs.ErrNotFound):
		status, code = fiber.StatusNotFound, "not_found"
	}
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}
