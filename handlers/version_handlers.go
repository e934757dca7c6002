package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"guidepost/api/version"

	"github.com/gin-gonic/gin"
)

// VersionHandlers answers the guide's "what is the current version" widget.
type VersionHandlers struct {
	Fetcher *version.Fetcher
}

func NewVersionHandlers(f *version.Fetcher) *VersionHandlers {
	return &VersionHandlers{Fetcher: f}
}

func (h *VersionHandlers) GetLatest(c *gin.Context) {
	key := c.DefaultQuery("tool", "claude-code")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	v, err := h.Fetcher.Latest(ctx, key)
	if err != nil {
		log.Printf("Failed to resolve latest version for %s: %v", key, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to resolve latest version", "tool": key})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tool": key, "version": v})
}

// ListTools enumerates the version sources the guide can ask about.
func (h *VersionHandlers) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.Fetcher.Keys()})
}
