package bulk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"catalog-bulk-api/internal/oplog"

	"github.com/gin-gonic/gin"
)

type BulkController struct {
	Importer *Importer
	Exporter *Exporter
	Queue    JobQueue
}

func (bc *BulkController) Import(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}

	entity := strings.ToLower(c.PostForm("entity"))
	if entity != EntityProducts && entity != EntityUsers {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown entity kind: %s", entity)})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	req := ImportRequest{
		Entity:   entity,
		Filename: fileHeader.Filename,
		Clean:    c.PostForm("clean") == "true",
		UserID:   userID,
		Data:     data,
	}

	logRow, err := bc.Importer.Logs.Create(oplog.DirectionImport, entity, req.Filename, userID, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	queued := bc.run(func(ctx context.Context) {
		if err := bc.Importer.Process(ctx, logRow, req); err != nil {
			fmt.Printf("import %d failed: %v\n", logRow.ID, err)
		}
	})

	if queued {
		c.JSON(http.StatusAccepted, gin.H{
			"message": "import accepted",
			"log_id":  logRow.ID,
		})
		return
	}

	// ran inline; the final log state is already known
	final, err := bc.Importer.Logs.GetLog(logRow.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "import finished",
		"log_id":  logRow.ID,
		"log":     final,
	})
}

func (bc *BulkController) Export(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Entity = strings.ToLower(req.Entity)
	if req.Entity != EntityProducts && req.Entity != EntityUsers {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown entity kind: %s", req.Entity)})
		return
	}
	if req.Format == "" {
		req.Format = FormatCSV
	}
	if req.Format != FormatCSV && req.Format != FormatXLSX {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format: %s", req.Format)})
		return
	}
	req.UserID = userID

	logRow, err := bc.Exporter.Logs.Create(oplog.DirectionExport, req.Entity, "", userID, req.Criteria())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	queued := bc.run(func(ctx context.Context) {
		if err := bc.Exporter.Process(ctx, logRow, req); err != nil {
			fmt.Printf("export %d failed: %v\n", logRow.ID, err)
		}
	})

	if queued {
		c.JSON(http.StatusAccepted, gin.H{
			"message": "export accepted",
			"log_id":  logRow.ID,
		})
		return
	}

	final, err := bc.Exporter.Logs.GetLog(logRow.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "export finished",
		"log_id":  logRow.ID,
		"log":     final,
	})
}

// run hands the job to the queue; when no queue is wired or the backlog is
// full the job executes inline and run reports false.
func (bc *BulkController) run(job Job) bool {
	if bc.Queue != nil && bc.Queue.Enqueue(job) {
		return true
	}
	job(context.Background())
	return false
}

func callerID(c *gin.Context) (uint, bool) {
	userIDVal, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user ID not found"})
		return 0, false
	}
	userID, ok := userIDVal.(float64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return 0, false
	}
	return uint(userID), true
}
