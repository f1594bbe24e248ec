package s3

import (
	"AppealRecognition/internal/entity"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/gabriel-vasile/mimetype"
)

const (
	defaultContentType = "image/jpeg"
	presignTTL         = 15 * time.Minute
)

var (
	ErrStorageUnavailable = errors.New("artifact storage unavailable")
	ErrLocalRead          = errors.New("cannot read local artifact")
)

type ItfS3 interface {
	Put(ctx context.Context, localPath string, key string) (entity.ArtifactRef, error)
	PresignUrl(key string) (string, error)
}

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// Endpoint targets an S3-compatible store; path-style addressing is
	// used whenever it is set.
	Endpoint string
}

type s3Client struct {
	client     *s3.S3
	uploader   *s3manager.Uploader
	bucketName string
}

func New() (ItfS3, error) {
	return NewWithConfig(Config{
		Region:          os.Getenv("AWS_REGION"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		BucketName:      os.Getenv("AWS_BUCKET_NAME"),
		Endpoint:        os.Getenv("AWS_ENDPOINT"),
	})
}

func NewWithConfig(cfg Config) (ItfS3, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("AWS_BUCKET_NAME is required")
	}

	sess, err := newSession(cfg)
	if err != nil {
		return nil, err
	}

	return &s3Client{
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		bucketName: cfg.BucketName,
	}, nil
}

// Put uploads the file at localPath under key. The local file is left in
// place; callers own its cleanup.
func (s *s3Client) Put(ctx context.Context, localPath string, key string) (entity.ArtifactRef, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return entity.ArtifactRef{}, fmt.Errorf("%w: %v", ErrLocalRead, err)
	}
	defer src.Close()

	contentType := detectImageContentType(localPath)

	uploadOutput, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        src,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return entity.ArtifactRef{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return entity.ArtifactRef{
		Key: key,
		URL: uploadOutput.Location,
	}, nil
}

// PresignUrl signs a GET for key locally; it makes no request to the store.
func (s *s3Client) PresignUrl(key string) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})

	urlStr, err := req.Presign(presignTTL)
	if err != nil {
		return "", err
	}

	return urlStr, nil
}

func newSession(cfg Config) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		// Retry policy belongs to the caller.
		MaxRetries: aws.Int(0),
	}

	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}

	return sess, nil
}

func detectImageContentType(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil || !strings.HasPrefix(mtype.String(), "image/") {
		return defaultContentType
	}
	return mtype.String()
}
