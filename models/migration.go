package models

import (
	"log"

	"bitbucket.org/zamonsoft/checkedit_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Check{},
		&ApiKey{},
		&SessionCookie{},
		&ProjectConfig{},
		&AutomationLog{},
		&UploadedFile{},
		&WorkerSession{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
