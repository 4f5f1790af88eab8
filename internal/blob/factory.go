package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a blob.Store implementation using environment variables.
//
//	IDCORE_STORAGE_DRIVER: sqlite|postgres|fs|s3|memory (default sqlite)
//	IDCORE_SQLITE_PATH: database file when driver=sqlite (default ./idcore.db)
//	IDCORE_POSTGRES_DSN: connection string when driver=postgres
//	IDCORE_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in internal/infra/blob/s3)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("IDCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverSQLite:
		return NewSQLite(ctx, os.Getenv("IDCORE_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgres(ctx, os.Getenv("IDCORE_POSTGRES_DSN"))
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("IDCORE_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
