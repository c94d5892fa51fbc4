package oplog

import (
	"catalog-bulk-api/internal/middlewares"
	"catalog-bulk-api/internal/storage"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, logService *LogService, store storage.BlobStore) {
	logController := &LogController{LogService: logService, Store: store}

	logGroup := r.Group("/api/oplog")
	logGroup.Use(middlewares.AuthMiddleware())
	{
		logGroup.POST("/search", logController.Search)
		logGroup.GET("/:id", logController.Get)
		logGroup.GET("/:id/download", logController.Download)
	}
}
