// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/coflow/internal/app/store/memstore"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app. Exactly one of
// the Mongo pair and Memory is set, depending on store_backend.
type DBDeps struct {
	CoFlowMongoClient   *mongo.Client
	CoFlowMongoDatabase *mongo.Database
	Memory              *memstore.Store

	// App is allocated by ConnectDB and filled in by Startup.
	App *App
}
