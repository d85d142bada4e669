package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// セッショントークン1件を読み書きするだけのため、接続数は小さく保つ。
const (
	maxOpenConns    = 2
	maxIdleConns    = 1
	connMaxIdleTime = 5 * time.Minute
)

// Open はkv_storeを置くPostgreSQLへの接続プールを開く。
// sql.Openは接続を試行しないため、到達確認は呼び出し元でPingContextを使うこと。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	return db, nil
}
