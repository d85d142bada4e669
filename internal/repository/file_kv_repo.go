package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileKVRepo はJSONファイルを使用したキーバリューリポジトリ。
// ファイルはユーザーのみが読み書きできる権限（0600）で作成する。
type FileKVRepo struct {
	path string
	mu   sync.Mutex
}

// NewFileKVRepo はFileKVRepoを生成する。
// 保存先ディレクトリが存在しない場合は0700で作成する。
func NewFileKVRepo(path string) (*FileKVRepo, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileKVRepo{path: path}, nil
}

// Read は指定キーの値を取得する。ファイルが存在しない場合はfound=falseを返す。
func (r *FileKVRepo) Read(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return "", false, err
	}
	value, ok := entries[key]
	return value, ok, nil
}

// Write は指定キーに値を保存する。
func (r *FileKVRepo) Write(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	entries[key] = value
	return r.save(entries)
}

// Remove は指定キーを削除する。
func (r *FileKVRepo) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return r.save(entries)
}

// load はファイル全体を読み込む。呼び出し元でロックを保持すること。
func (r *FileKVRepo) load() (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	entries := make(map[string]string)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage file: %w", err)
	}
	return entries, nil
}

// save は一時ファイルに書き込んでからリネームし、途中状態のファイルが残らないようにする。
func (r *FileKVRepo) save(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ KeyValueRepository = (*FileKVRepo)(nil)
