package main

import (
	"context"
	"log"
	"os"

	"catalog-bulk-api/config"
	"catalog-bulk-api/internal/bulk"
	"catalog-bulk-api/internal/oplog"
	"catalog-bulk-api/internal/product"
	"catalog-bulk-api/internal/storage"
	"catalog-bulk-api/internal/user"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.LoadConfig()

	dsn := "host=" + cfg.DBHost +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPassword +
		" dbname=" + cfg.DBName +
		" port=" + cfg.DBPort +
		" sslmode=disable"

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&product.Product{},
		&user.User{},
		&oplog.OperationLog{},
		&oplog.OperationLogDetail{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	ctx := context.Background()

	logService := &oplog.LogService{DB: db}
	store := &storage.GCSStore{Bucket: cfg.BucketName}

	broadcaster := bulk.NewBroadcaster()
	go func() {
		for ev := range broadcaster.Subscribe() {
			log.Printf("[%s] %s", ev.Status, ev.Message)
		}
	}()

	pool := bulk.NewWorkerPool(4, 32)
	pool.Start(ctx)

	importer := &bulk.Importer{DB: db, Logs: logService, Store: store, Notify: broadcaster}
	exporter := &bulk.Exporter{DB: db, Logs: logService, Store: store, Notify: broadcaster}
	bulk.RegisterRoutes(r, importer, exporter, pool)

	oplog.RegisterRoutes(r, logService, store)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting server on 0.0.0.0:%s ...", port)
	log.Fatal(r.Run("0.0.0.0:" + port))
}
