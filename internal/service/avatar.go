package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AvatarSigner выдаёт временный URL фотографии по ключу объекта.
type AvatarSigner interface {
	AvatarURL(ctx context.Context, key string) (string, error)
}

// S3AvatarSigner подписывает GET-ссылки на объекты S3-совместимого бакета.
// Подпись вычисляется локально, сетевых запросов нет.
type S3AvatarSigner struct {
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// S3Params — параметры подключения к бакету аватаров.
type S3Params struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	TTL       time.Duration
}

// NewS3AvatarSigner создаёт подписчик ссылок. Пустой Endpoint означает AWS S3.
func NewS3AvatarSigner(p S3Params) *S3AvatarSigner {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     p.AccessKey,
			SecretAccessKey: p.SecretKey,
			Source:          "fitportal-config",
		}, nil
	})

	client := s3.New(s3.Options{
		Region:      p.Region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		if p.Endpoint != "" {
			o.BaseEndpoint = aws.String(p.Endpoint)
			// MinIO и большинство S3-совместимых хранилищ требуют path-style
			o.UsePathStyle = true
		}
	})

	ttl := p.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &S3AvatarSigner{
		presign: s3.NewPresignClient(client),
		bucket:  p.Bucket,
		ttl:     ttl,
	}
}

// AvatarURL возвращает presigned GET URL объекта.
func (s *S3AvatarSigner) AvatarURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("подпись ссылки на %s: %w", key, err)
	}
	return req.URL, nil
}

// isObjectKey отличает ключ объекта в бакете от готового URL.
func isObjectKey(foto string) bool {
	if foto == "" {
		return false
	}
	lower := strings.ToLower(foto)
	return !strings.HasPrefix(lower, "http://") &&
		!strings.HasPrefix(lower, "https://") &&
		!strings.HasPrefix(lower, "data:")
}
