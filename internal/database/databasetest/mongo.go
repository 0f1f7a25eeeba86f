package databasetest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/redmonkez12/todo-api/internal/database"
)

// NewMongo returns a fresh database on the server named by MONGO_TEST_URI
// (default mongodb://localhost:27017). The test is skipped when the server
// is not reachable. The database is dropped when the test ends.
func NewMongo(t testing.TB) *mongo.Database {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := database.OpenMongo(ctx, uri)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	db := client.Database(fmt.Sprintf("todo_api_test_%d", time.Now().UnixNano()))

	t.Cleanup(func() {
		ctx := context.Background()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	return db
}
