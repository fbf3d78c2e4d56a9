package tests

import (
	"testing"
	"time"

	"dbplane/controlplane/catalog"
	"dbplane/controlplane/provision"
	"dbplane/controlplane/schema"
	"dbplane/controlplane/services"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	api     chi.Router
	catalog *catalog.Catalog
	router  *RouterStub
}

const testSecret = "290zcv02ai249"

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := schema.Migrate(db); err != nil {
		t.Fatal(err)
	}

	cat := catalog.New(catalog.NewGormStore(db), time.Minute)
	router := newRouterStub()

	orchestrator := provision.NewOrchestrator(
		cat,
		&RelationalStoreStub{Router: router},
		&DocumentStoreStub{},
		provision.Templates{
			RelationalDsn: "tenant_{tenant}",
			DocumentUri:   "mongodb://localhost/tenant_{tenant}",
			DocumentDb:    "tenant_{tenant}",
		},
		10,
		nil,
	)

	controlPlane := services.NewControlPlane(cat, orchestrator, router, 1000, []byte(testSecret))

	return &testEnv{api: controlPlane.Routes(), catalog: cat, router: router}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}
