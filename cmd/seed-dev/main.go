// seed-dev seeds a local database with a workspace's worth of fixtures for
// worker development: a connected gmail integration, a handful of expense
// categories and one pending processing job for a message id.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     SEED_MESSAGE_ID=<gmail message id> go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/receipts_backend/config"
	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"github.com/google/uuid"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	workspaceId := os.Getenv("SEED_WORKSPACE_ID")
	if workspaceId == "" {
		workspaceId = uuid.NewString()
	}
	userId := os.Getenv("SEED_USER_ID")
	if userId == "" {
		userId = uuid.NewString()
	}

	conn := models.IntegrationConnection{
		ID:                uuid.New(),
		WorkspaceId:       workspaceId,
		Provider:          models.IntegrationProviderGmail,
		Status:            models.IntegrationStatusConnected,
		ConnectedByUserId: &userId,
	}
	if err := db.WithContext(ctx).Create(&conn).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to create integration: %v\n", err)
		os.Exit(1)
	}

	for _, name := range []string{"Food & Dining", "Transport", "Shopping", "Utilities", "Health"} {
		if _, err := models.CreateCategory(ctx, &models.NewCategory{
			WorkspaceId: workspaceId,
			Name:        name,
			Type:        models.CategoryTypeExpense,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create category %q: %v\n", name, err)
			os.Exit(1)
		}
	}

	messageId := os.Getenv("SEED_MESSAGE_ID")
	if messageId == "" {
		fmt.Printf("seeded workspace %s (integration %s); set SEED_MESSAGE_ID to also enqueue a job\n", workspaceId, conn.ID)
		return
	}

	job, err := models.EnqueueReceiptJob(ctx, userId, models.ReceiptJobPayload{
		IntegrationId:   conn.ID.String(),
		SourceMessageId: messageId,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to enqueue job: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded workspace %s (integration %s), enqueued job %s for message %s\n",
		workspaceId, conn.ID, job.ID, messageId)
}
