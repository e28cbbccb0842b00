package service

import (
	"context"

	"commUnity/internal/pkg"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// storeErr 记录不存在转为 NotFound，其余错误包装后返回
func storeErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkg.NewNotFoundError(resource)
	}
	return errors.Wrapf(err, "%s store", resource)
}

// discardAsset 数据库写入失败后删除已保存的上传文件
func discardAsset(ctx context.Context, assets pkg.AssetStore, url string) {
	if err := assets.Remove(context.WithoutCancel(ctx), url); err != nil {
		pkg.Logger.WarnContext(ctx, "remove orphaned upload failed", "url", url, "error", err)
	}
}
