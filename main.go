package main

import (
	"context"
	"fmt"

	"github.com/quillworks/quill/config"
	"github.com/quillworks/quill/models"
	"github.com/quillworks/quill/routes"
	"github.com/quillworks/quill/storage"
	"github.com/quillworks/quill/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	defer utils.Logger.Sync()

	db := config.InitDatabase(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
	)

	images, err := storage.NewMinIOStorage(context.Background(), cfg)
	if err != nil {
		utils.Sugar.Fatalf("failed to init image storage: %v", err)
	}

	mailer := utils.NewSMTPMailer()

	r := routes.SetupRouter(db, mailer, images)

	addr := ":" + cfg.AppPort
	utils.Sugar.Infof("listening on %s", addr)
	if err := utils.GraceServer(addr, r); err != nil {
		utils.Sugar.Fatalf("server exited: %v", err)
	}
}
