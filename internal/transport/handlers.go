// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/model"
)

// maxUploadSize bounds the multipart image read.
const maxUploadSize = 20 << 20

type MemeHandler struct {
	service MemeService
}

type MemeService interface {
	SwapURL(ctx context.Context, url string) (*model.SwapResult, error)
	SwapUpload(ctx context.Context, data []byte, contentType string) (*model.SwapResult, error)
	Trending(ctx context.Context, limit int) ([]model.Candidate, error)
	SearchCelebrity(ctx context.Context, name string, limit int) ([]model.Candidate, error)
	Roast(ctx context.Context, req model.RoastRequest) (string, error)
	LoadImage(ctx context.Context, key string) (io.ReadCloser, string, error)
	RefreshMemeCache(ctx context.Context) error
}

func NewMemeHandler(svc MemeService) *MemeHandler {
	return &MemeHandler{
		service: svc,
	}
}

func (h MemeHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h MemeHandler) SwapByURL(ctx *ginext.Context) {
	url := ctx.Query("url")
	if url == "" {
		ctx.JSON(400, map[string]string{"error": "url is required"})
		return
	}

	res, err := h.service.SwapURL(ctx.Request.Context(), url)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h MemeHandler) SwapUpload(ctx *ginext.Context) {
	imageFile, imageHeader, err := ctx.Request.FormFile("image")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "image is required"})
		return
	}
	defer closeFileFlow(imageFile)

	if imageHeader.Size > maxUploadSize {
		ctx.JSON(400, map[string]string{"error": "image too large"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(imageFile, maxUploadSize))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to read image"})
		return
	}

	res, err := h.service.SwapUpload(ctx.Request.Context(), data, imageHeader.Header.Get("Content-Type"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(201, res)
}

func (h MemeHandler) Trends(ctx *ginext.Context) {
	limit := parseLimit(ctx.Query("limit"))

	res, err := h.service.Trending(ctx.Request.Context(), limit)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, map[string]any{"trends": res})
}

func (h MemeHandler) Search(ctx *ginext.Context) {
	name := ctx.Query("name")
	if name == "" {
		ctx.JSON(400, map[string]string{"error": "name is required"})
		return
	}
	limit := parseLimit(ctx.Query("limit"))

	res, err := h.service.SearchCelebrity(ctx.Request.Context(), name, limit)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, map[string]any{"results": res})
}

func (h MemeHandler) Roast(ctx *ginext.Context) {
	key := ctx.Query("key")
	if key == "" {
		ctx.JSON(400, map[string]string{"error": "key is required"})
		return
	}

	text, err := h.service.Roast(ctx.Request.Context(), model.RoastRequest{
		ImageKey: key,
		Tone:     ctx.Query("tone"),
	})
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, map[string]string{"roast": text})
}

func (h MemeHandler) RefreshCache(ctx *ginext.Context) {
	if err := h.service.RefreshMemeCache(ctx.Request.Context()); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Status(204)
}

func (h MemeHandler) LoadImage(ctx *ginext.Context) {
	// wildcard param keeps the "orig/"/"swap/" namespaces in the key
	key := strings.TrimPrefix(ctx.Param("key"), "/")

	res, cType, err := h.service.LoadImage(ctx.Request.Context(), key)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(res)

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		zlog.Logger.Warn().Err(err).Int64("bytes", n).Str("key", key).Msg("Failed to write image response")
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
