package pkg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const MaxUploadSize = 5 << 20

var allowedImageExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// AssetStore 保存上传的图片并返回公开 URL；Remove 删除 Save 返回的 URL 对应的文件
type AssetStore interface {
	Save(ctx context.Context, fh *multipart.FileHeader) (string, error)
	Remove(ctx context.Context, url string) error
}

// LocalAssetStore 将文件写到本地目录，通过 /uploads 静态路由对外提供
type LocalAssetStore struct {
	dir     string
	baseURL string
}

func NewLocalAssetStore(dir, baseURL string) (*LocalAssetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalAssetStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalAssetStore) Dir() string { return s.dir }

func (s *LocalAssetStore) Save(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fh.Size > MaxUploadSize {
		return "", NewValidationError("file too large")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExt[ext] {
		return "", NewValidationError("unsupported image type")
	}

	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err = io.Copy(dst, io.LimitReader(src, MaxUploadSize)); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return fmt.Sprintf("%s/uploads/%s", s.baseURL, name), nil
}

// Remove 只处理本 store 生成的 URL，文件已不存在视为成功
func (s *LocalAssetStore) Remove(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := s.baseURL + "/uploads/"
	if !strings.HasPrefix(url, prefix) {
		return fmt.Errorf("asset %q is not managed by this store", url)
	}
	name := strings.TrimPrefix(url, prefix)
	if name == "" || strings.HasPrefix(name, ".") || name != filepath.Base(name) {
		return fmt.Errorf("invalid asset name %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
