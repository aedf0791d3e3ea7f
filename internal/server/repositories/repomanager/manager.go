package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/clouddrive/internal/dbx"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/folders"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/tokens"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs against *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Folders(db dbx.DBTX) folders.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Chunks(db dbx.DBTX) chunks.Repository
}
