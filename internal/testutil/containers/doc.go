// Package containers provides testcontainer management for integration tests.
//
// It wraps testcontainers-go to start a disposable MySQL 8.0 instance so the
// GORM repositories can be exercised against the same engine production runs,
// not just in-memory SQLite.
//
// Containers are typically managed from TestMain:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Integration tests using this package carry the "integration" build tag:
//
//	go test -tags=integration ./...
package containers
