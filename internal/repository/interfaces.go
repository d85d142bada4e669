// Package repository はデータ永続化のインターフェースを定義する。
package repository

import "context"

// KeyValueRepository はセッショントークンを保存する永続キーバリューストアのインターフェース。
// 値はスキーマを持たない単一の文字列として扱う。
type KeyValueRepository interface {
	// Read は指定キーの値を取得する。キーが存在しない場合はfound=falseを返す。
	Read(ctx context.Context, key string) (value string, found bool, err error)

	// Write は指定キーに値を保存する。既存の値は上書きする。
	Write(ctx context.Context, key, value string) error

	// Remove は指定キーを削除する。キーが存在しない場合もエラーにしない。
	Remove(ctx context.Context, key string) error
}
