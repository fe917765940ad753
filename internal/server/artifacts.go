package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/repohub/internal/engine"
	"github.com/any-hub/repohub/internal/errs"
	"github.com/any-hub/repohub/internal/vfs"
)

type artifactHandler struct {
	engine *engine.Engine
	logger *logrus.Logger
}

func (h *artifactHandler) resolve(c fiber.Ctx) (vfs.Path, error) {
	return h.engine.Resolve(c.Params("storage"), c.Params("repository"), c.Params("*"))
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// serve 处理 GET/HEAD：命中本地或经由 proxy/group 拉取后流式返回。
func (h *artifactHandler) serve(c fiber.Ctx) error {
	p, err := h.resolve(c)
	if err != nil {
		return h.renderError(c, err)
	}
	art, err := h.engine.FetchOrServe(requestContext(c), p)
	if err != nil {
		return h.renderError(c, err)
	}

	setContentType(c, p.Name())
	c.Response().Header.SetContentLength(int(art.Entry.SizeBytes))
	c.Set("Last-Modified", art.Entry.ModTime.UTC().Format(http.TimeFormat))
	c.Set("X-Repohub-Served-By", art.ServedBy.Key())
	if art.CacheHit {
		c.Set("X-Repohub-Cache-Hit", "true")
	} else {
		c.Set("X-Repohub-Cache-Hit", "false")
	}
	if art.Stale {
		c.Set("Warning", `110 - "Response is Stale"`)
	}
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		return art.Body.Close()
	}
	_, err = io.Copy(c.Response().BodyWriter(), art.Body)
	art.Body.Close()
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "read artifact failed: "+err.Error())
	}
	return nil
}

// deploy 处理 PUT：仅 hosted 仓库接受写入。
func (h *artifactHandler) deploy(c fiber.Ctx) error {
	p, err := h.resolve(c)
	if err != nil {
		return h.renderError(c, err)
	}
	entry, err := h.engine.Deploy(requestContext(c), p, bytes.NewReader(c.Body()))
	if err != nil {
		return h.renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"path":      p.String(),
		"size":      entry.SizeBytes,
		"checksums": entry.Checksums,
	})
}

// evict 处理 DELETE：proxy 仓库清除缓存，hosted 仓库删除制品。
func (h *artifactHandler) evict(c fiber.Ctx) error {
	p, err := h.resolve(c)
	if err != nil {
		return h.renderError(c, err)
	}
	if err := h.engine.Evict(requestContext(c), p); err != nil {
		return h.renderError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func setContentType(c fiber.Ctx, name string) {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	switch ext {
	case "":
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	case "sha1", "md5":
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	case "pom":
		c.Type("xml")
	default:
		c.Type(ext)
	}
}

// statusFor 把错误分类映射为 HTTP 状态码与错误码。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrInvalidPath):
		return fiber.StatusBadRequest, "invalid_path"
	case errors.Is(err, errs.ErrOutOfService):
		return fiber.StatusServiceUnavailable, "repository_out_of_service"
	case errors.Is(err, engine.ErrUnsupported):
		return fiber.StatusMethodNotAllowed, "unsupported_operation"
	case errors.Is(err, errs.ErrPoolExhausted):
		return fiber.StatusServiceUnavailable, "pool_exhausted"
	case errors.Is(err, errs.ErrChecksumMismatch):
		return fiber.StatusBadGateway, "checksum_mismatch"
	case errors.Is(err, errs.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrUpstream):
		return fiber.StatusBadGateway, "upstream_failure"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "upstream_timeout"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func (h *artifactHandler) renderError(c fiber.Ctx, err error) error {
	status, code := statusFor(err)
	entry := h.logger.WithFields(logrus.Fields{
		"action":     "http_request",
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     status,
		"request_id": RequestID(c),
	}).WithError(err)
	if status >= fiber.StatusInternalServerError {
		entry.Warn("request_failed")
	} else {
		entry.Debug("request_rejected")
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": err.Error(),
	})
}
