package filestore

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sharedcode/grader"
)

// S3Config carries the bucket endpoint details. Works against AWS S3 or any
// compatible endpoint such as minio.
type S3Config struct {
	// "http://127.0.0.1:9000"
	HostEndpointUrl string
	// "us-east-1"
	Region   string
	Username string
	Password string
	Bucket   string
}

// Connect to the S3 (compatible) server endpoint.
func Connect(config S3Config) *s3.Client {
	client := s3.NewFromConfig(aws.Config{Region: config.Region}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.HostEndpointUrl)
		o.Credentials = credentials.NewStaticCredentialsProvider(config.Username, config.Password, "")
	})
	return client
}

type s3BlobStore struct {
	bucketName string
	s3Client   *s3.Client
}

// NewS3BlobStore instantiates a blob store over an S3 bucket. Blobs are
// keyed "<uuid>/<sanitized name>", mirroring the filesystem layout.
func NewS3BlobStore(client *s3.Client, bucketName string) BlobStore {
	return &s3BlobStore{
		bucketName: bucketName,
		s3Client:   client,
	}
}

func (b *s3BlobStore) Write(ctx context.Context, id grader.UUID, name string, source io.Reader) (string, error) {
	key := id.String() + "/" + SanitizeName(name)
	uploader := manager.NewUploader(b.s3Client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   source,
	})
	if err != nil {
		return "", grader.Error{Code: grader.FileIOError, Err: err, UserData: key}
	}
	return key, nil
}

func (b *s3BlobStore) Read(ctx context.Context, path string) ([]byte, error) {
	downloader := manager.NewDownloader(b.s3Client)
	buffer := manager.NewWriteAtBuffer([]byte{})
	_, err := downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, grader.Error{Code: grader.FileIOError, Err: err, UserData: path}
	}
	return buffer.Bytes(), nil
}

func (b *s3BlobStore) Remove(ctx context.Context, path string) error {
	_, err := b.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(path),
	})
	if err != nil {
		return grader.Error{Code: grader.FileIOError, Err: err, UserData: path}
	}
	return nil
}
