package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"recruit-go/pkg/utils"
)

// ErrObjectNotFound 对象 (简历PDF或批量上传文件) 不存在
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStorage 批量上传文件和简历PDF的对象存储接口
type ObjectStorage interface {
	// UploadBatchFile 流式上传批量文件并同时计算MD5，返回对象键和MD5
	UploadBatchFile(ctx context.Context, uploadID, fileName string, reader io.Reader, fileSize int64) (string, string, error)
	// DeleteBatchFile 删除批量上传文件
	DeleteBatchFile(ctx context.Context, objectKey string) error
	// OpenResume 打开一份简历PDF，不存在时返回 ErrObjectNotFound
	OpenResume(ctx context.Context, fileName string) (io.ReadCloser, int64, error)
}

var (
	_ ObjectStorage = (*MinIO)(nil)
	_ ObjectStorage = (*LocalObjects)(nil)
)

// batchObjectKey 批量上传文件的对象键，例如: batch/{uploadID}/candidates.zip
func batchObjectKey(uploadID, fileName string) string {
	return fmt.Sprintf("batch/%s/%s", uploadID, utils.BaseName(fileName))
}

// LocalObjects 未配置 MinIO 时使用本地目录保存文件
type LocalObjects struct {
	uploadDir string
	resumeDir string
}

// NewLocalObjects 创建本地对象存储，uploadDir 不存在时自动创建
func NewLocalObjects(uploadDir, resumeDir string) (*LocalObjects, error) {
	if uploadDir != "" {
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			return nil, fmt.Errorf("创建上传目录 %s 失败: %w", uploadDir, err)
		}
	}
	return &LocalObjects{uploadDir: uploadDir, resumeDir: resumeDir}, nil
}

// UploadBatchFile 写入失败或关闭失败时删除不完整的文件
func (l *LocalObjects) UploadBatchFile(_ context.Context, uploadID, fileName string, reader io.Reader, _ int64) (key, md5Hex string, err error) {
	key = batchObjectKey(uploadID, fileName)
	path := filepath.Join(l.uploadDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", "", fmt.Errorf("创建目录失败: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("创建文件 %s 失败: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("关闭文件 %s 失败: %w", path, closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
			key, md5Hex = "", ""
		}
	}()

	md5Hash := md5.New()
	if _, err := io.Copy(f, io.TeeReader(reader, md5Hash)); err != nil {
		return "", "", fmt.Errorf("写入文件 %s 失败: %w", path, err)
	}
	return key, hex.EncodeToString(md5Hash.Sum(nil)), nil
}

func (l *LocalObjects) DeleteBatchFile(_ context.Context, objectKey string) error {
	err := os.Remove(filepath.Join(l.uploadDir, filepath.FromSlash(objectKey)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// OpenResume 只接受纯文件名，路径成分会被去掉
func (l *LocalObjects) OpenResume(_ context.Context, fileName string) (io.ReadCloser, int64, error) {
	name := utils.BaseName(fileName)
	if name == "" {
		return nil, 0, ErrObjectNotFound
	}
	f, err := os.Open(filepath.Join(l.resumeDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, ErrObjectNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, ErrObjectNotFound
	}
	return f, info.Size(), nil
}
