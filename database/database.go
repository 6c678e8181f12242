package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// HashCount is a fingerprint shared by more than one photo record.
type HashCount struct {
	FileHash string
	Count    int
}

// DuplicateHashes lists fingerprints held by more than one photo, largest
// groups first. Records without a fingerprint are ignored.
func DuplicateHashes(db Querier) ([]HashCount, error) {
	queryBuilder := psql.Select("file_hash", "COUNT(id) AS copies").
		From("photos").
		Where(sq.And{sq.NotEq{"file_hash": nil}, sq.NotEq{"file_hash": ""}}).
		GroupBy("file_hash").
		Having("COUNT(id) > ?", 1).
		OrderBy("copies DESC", "file_hash ASC")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for DuplicateHashes: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate hashes: %w", err)
	}
	defer rows.Close()

	var out []HashCount
	for rows.Next() {
		var hc HashCount
		if err := rows.Scan(&hc.FileHash, &hc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate hash row: %w", err)
		}
		out = append(out, hc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate duplicate hashes: %w", err)
	}
	return out, nil
}
