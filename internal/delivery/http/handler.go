package http

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pricepulse/backend/internal/domain"
)

// ComparisonService is the usecase behind the compare endpoint
type ComparisonService interface {
	Compare(ctx context.Context, query, method string) (*domain.Comparison, error)
	APIAvailable() bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	comparisonService ComparisonService
	indexPath         string
}

// NewHandler creates a new HTTP handler
func NewHandler(comparisonService ComparisonService, indexPath string) *Handler {
	return &Handler{
		comparisonService: comparisonService,
		indexPath:         indexPath,
	}
}

// Index serves the single-page frontend
func (h *Handler) Index(c *gin.Context) {
	content, err := os.ReadFile(h.indexPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Frontend file not found"})
			return
		}
		log.Error().Err(err).Str("path", h.indexPath).Msg("Failed to read frontend file")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Error reading frontend file: %v", err),
		})
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", content)
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"api_available": h.comparisonService != nil && h.comparisonService.APIAvailable(),
		"message":       "PricePulse server is running",
	})
}

// Compare handles GET /compare?query=...&method=scrape|api
func (h *Handler) Compare(c *gin.Context) {
	if h.comparisonService == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Comparison service not configured"})
		return
	}

	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing query parameter"})
		return
	}
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter cannot be empty"})
		return
	}

	method := c.DefaultQuery("method", domain.MethodScrape)

	comparison, err := h.comparisonService.Compare(c.Request.Context(), query, method)
	if err != nil {
		h.handleCompareError(c, err)
		return
	}

	c.JSON(http.StatusOK, comparison)
}

// handleCompareError maps usecase errors to HTTP responses
func (h *Handler) handleCompareError(c *gin.Context, err error) {
	var allFailed *domain.AllFailedError

	switch {
	case errors.As(err, &allFailed):
		message := "Unable to fetch data from any e-commerce platform. "
		if allFailed.Method == domain.MethodAPI {
			message += "Try switching to scraping method."
		} else {
			message += "Please try again later or try a different search term."
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   message,
			"details": allFailed.Diagnostic,
		})

	case errors.Is(err, domain.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter cannot be empty"})

	default:
		log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("Comparison failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Internal server error: %v", err),
		})
	}
}
