package oplog

import (
	"io"
	"net/http"
	"path"
	"strconv"

	"catalog-bulk-api/internal/storage"

	"github.com/gin-gonic/gin"
)

type LogController struct {
	LogService *LogService
	Store      storage.BlobStore
}

func (lc *LogController) Search(c *gin.Context) {
	var input LogFilterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logs, total, totalPages, err := lc.LogService.GetLogs(input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":        logs,
		"page":        input.Page,
		"page_size":   input.PageSize,
		"total":       total,
		"total_pages": totalPages,
	})
}

func (lc *LogController) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return
	}

	logRow, err := lc.LogService.GetLog(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logRow})
}

// Download streams the artifact of a finished export back to the caller.
func (lc *LogController) Download(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return
	}

	logRow, err := lc.LogService.GetLog(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		return
	}

	if logRow.ArtifactPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "log has no artifact"})
		return
	}

	rc, contentType, err := lc.Store.Open(c.Request.Context(), logRow.ArtifactPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+path.Base(logRow.ArtifactPath))
	c.Data(http.StatusOK, contentType, data)
}
