package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options 描述要開啟哪一種後端
type Options struct {
	Driver        string // sqlite | redis | memory
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
}

// Open 依 Options.Driver 建立對應的 Store
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "sqlite", "":
		if dir := filepath.Dir(opts.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("無法建立資料目錄: %w", err)
			}
		}
		return NewSQLite(opts.SQLitePath)
	case "redis":
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.Namespace)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", opts.Driver)
	}
}
