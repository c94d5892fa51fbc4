package bulk

import (
	"catalog-bulk-api/internal/middlewares"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, importer *Importer, exporter *Exporter, queue JobQueue) {
	bulkController := &BulkController{Importer: importer, Exporter: exporter, Queue: queue}

	bulkGroup := r.Group("/api/bulk")
	bulkGroup.Use(middlewares.AuthMiddleware())
	{
		bulkGroup.POST("/import", bulkController.Import)
		bulkGroup.POST("/export", bulkController.Export)
	}
}
