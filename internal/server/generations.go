package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/logoforge/internal/auth"
	consumptiondomain "github.com/smallbiznis/logoforge/internal/consumption/domain"
	"github.com/smallbiznis/logoforge/internal/observability/logger"
	"github.com/smallbiznis/logoforge/pkg/db/pagination"
	"go.uber.org/zap"
)

type createGenerationRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) CreateGeneration(c *gin.Context) {
	userID, err := auth.RequireUser(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, consumptiondomain.ErrInvalidPrompt)
		return
	}

	result, err := s.consumptionSvc.Generate(c.Request.Context(), consumptiondomain.GenerateRequest{
		UserID: userID,
		Prompt: req.Prompt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListGenerations(c *gin.Context) {
	userID, err := auth.RequireUser(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.generationSvc.List(c.Request.Context(), userID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DownloadGeneration streams the high-res asset once purchased, otherwise the preview.
func (s *Server) DownloadGeneration(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	generation, err := s.generationSvc.Get(ctx, userID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	url, err := s.store.PresignGet(ctx, generation.DownloadAssetKey(), s.credits.Get().AssetURLTTL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := s.fetchAsset(ctx, url)
	if err != nil {
		logger.FromContext(ctx).Error("asset download failed",
			zap.String("generation_id", generation.ID.String()),
			zap.Error(err),
		)
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer body.Close()

	c.Header("Content-Type", "image/png")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.png"`, downloadName(generation.Prompt())))
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		logger.FromContext(ctx).Warn("asset stream interrupted",
			zap.String("generation_id", generation.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Server) fetchAsset(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.assetClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("asset fetch returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func downloadName(prompt string) string {
	name := slug.Make(strings.TrimSpace(prompt))
	if len(name) > 64 {
		name = strings.Trim(name[:64], "-")
	}
	if name == "" {
		return "logo"
	}
	return name
}
