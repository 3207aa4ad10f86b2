package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"scenecast/internal/config"
)

// S3 resolves handles by downloading the object into the temp directory.
type S3 struct {
	bucket     string
	tempDir    string
	downloader *s3manager.Downloader
}

// NewS3 builds an S3-backed store from configuration.
func NewS3(cfg *config.Config) (*S3, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Storage.S3Region),
	}
	if cfg.Storage.S3AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			cfg.Storage.S3AccessKey,
			cfg.Storage.S3SecretKey,
			"",
		)
	}
	if cfg.Storage.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Storage.S3Endpoint)
	}
	if cfg.Storage.S3PathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3{
		bucket:     cfg.Storage.S3Bucket,
		tempDir:    cfg.Paths.TempDir,
		downloader: s3manager.NewDownloader(sess),
	}, nil
}

// Resolve implements Store. The object is downloaded to a unique file in the
// temp directory; cleanup removes it.
func (s *S3) Resolve(ctx context.Context, handle string) (string, func(), error) {
	if !validHandle(handle) {
		return "", nil, fmt.Errorf("%w: invalid handle %q", ErrNotFound, handle)
	}

	localPath := filepath.Join(s.tempDir, "upload_"+uuid.NewString()+filepath.Ext(handle))
	file, err := os.Create(localPath)
	if err != nil {
		return "", nil, fmt.Errorf("create local file: %w", err)
	}

	_, err = s.downloader.DownloadWithContext(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(handle),
	})
	closeErr := file.Close()
	if err != nil {
		_ = os.Remove(localPath)
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return "", nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
		}
		return "", nil, fmt.Errorf("download %s from s3: %w", handle, err)
	}
	if closeErr != nil {
		_ = os.Remove(localPath)
		return "", nil, fmt.Errorf("close local file: %w", closeErr)
	}

	cleanup := func() { _ = os.Remove(localPath) }
	return localPath, cleanup, nil
}
