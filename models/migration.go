package models

import (
	"log"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Receipt{}, &ReceiptProcessingJob{},
		&Category{}, &Transaction{},
		&IntegrationConnection{},
		&History{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
