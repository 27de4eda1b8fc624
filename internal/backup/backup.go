// Package backup uploads encrypted vault exports to S3-compatible object
// storage and retrieves them for restore. The payload is the plain export
// text sealed with the vault master key, so the storage provider only ever
// sees ciphertext.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"otpkeeper/internal/cryptox"
	"otpkeeper/internal/logging"
)

// sealed payload layout: 12-byte GCM nonce followed by the ciphertext
const nonceSize = 12

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}
)

// Config holds the object storage connection settings.
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// Service seals and ships vault exports.
type Service struct {
	cfg    Config
	key    []byte
	logger logging.Logger
}

func NewService(cfg Config, masterKey []byte, logger logging.Logger) *Service {
	return &Service{cfg: cfg, key: masterKey, logger: logger}
}

func (s *Service) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKey,
			s.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
		}
	}), nil
}

// backupKey spreads objects by store and date so retention tooling can
// prune by prefix.
func backupKey(storeID string) string {
	d := time.Now()
	return fmt.Sprintf("vaults/%s/%d/%d/%d/%v", storeID, d.Year(), d.Month(), d.Day(), uuid.New())
}

// Upload seals data with the master key and stores it under a fresh object
// key, which is returned for later restore.
func (s *Service) Upload(ctx context.Context, storeID string, data []byte) (string, error) {
	ciphertext, nonce, err := cryptox.Encrypt(data, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to seal backup: %w", err)
	}
	payload := append(nonce, ciphertext...)

	client, err := s.client(ctx)
	if err != nil {
		return "", err
	}

	key := backupKey(storeID)
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	s.logger.Info(ctx, "backup uploaded", "bucket", s.cfg.Bucket, "key", key, "size", len(payload))
	return key, nil
}

// Download fetches a backup object and unseals it with the master key.
func (s *Service) Download(ctx context.Context, objectKey string) ([]byte, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := getObject(client, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download backup: %w", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	if len(payload) < nonceSize {
		return nil, fmt.Errorf("backup object %s is truncated", objectKey)
	}

	data, err := cryptox.Decrypt(payload[nonceSize:], payload[:nonceSize], s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal backup: %w", err)
	}
	return data, nil
}
