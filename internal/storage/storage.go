package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/crm-gin/internal/config"
)

// ErrNotFound 引用对应的对象不存在
var ErrNotFound = errors.New("object not found")

// Storage 附件存储, 只返回不透明的引用
type Storage interface {
	// Store 保存文件并返回引用
	Store(ctx context.Context, name string, data []byte) (string, error)
	Read(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// DefaultPrefix 附件引用的统一前缀
const DefaultPrefix = "task_attachments"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename 去掉路径并替换不安全字符
func SanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}

// NewKey 生成 task_attachments/yyyy/mm/<uuid>-<name> 形式的引用
func NewKey(name string, now time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%s-%s", DefaultPrefix, now.Year(), int(now.Month()), uuid.New().String(), SanitizeFilename(name))
}

// validRef 拒绝越界引用
func validRef(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "/") {
		return false
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// New 根据配置创建存储后端
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		return NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
