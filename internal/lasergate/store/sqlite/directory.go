package sqlite

import (
	"database/sql"

	dbpkg "github.com/BrandonDHaskell/lasergate/internal/db"
)

// Directory is the sqlite store.Directory. Reads go straight to db; every
// write is a transaction on the single writer worker.
type Directory struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDirectory(db *sql.DB, writer *dbpkg.Worker) *Directory {
	return &Directory{db: db, writer: writer}
}
