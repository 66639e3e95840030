package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/quartzlab/depot/internal/depot/domain"
)

// Compile-time interface check.
var _ Store = (*S3Store)(nil)

// S3Config carries the connection settings for an S3-compatible endpoint
// (AWS, MinIO, anything speaking the protocol).
type S3Config struct {
	EndpointURL     string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

type S3Store struct {
	client *s3.Client
}

// NewS3Store creates a Store backed by S3-compatible storage.
func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{client: newS3Client(cfg)}
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}

func (s *S3Store) MakeBucket(ctx context.Context, bucket string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isS3BucketExists(err) {
			return ErrBucketExists
		}

		return fmt.Errorf("creating bucket %q: %w", bucket, err)
	}

	return nil
}

func (s *S3Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("checking bucket %q: %w", bucket, err)
	}

	return true, nil
}

func (s *S3Store) ListBuckets(ctx context.Context) ([]domain.BucketInfo, error) {
	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	buckets := make([]domain.BucketInfo, 0, len(out.Buckets))

	for _, b := range out.Buckets {
		info := domain.BucketInfo{Name: aws.ToString(b.Name)}
		if b.CreationDate != nil {
			info.CreatedAt = *b.CreationDate
		}

		buckets = append(buckets, info)
	}

	return buckets, nil
}

func (s *S3Store) RemoveBucket(ctx context.Context, bucket string) error {
	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		switch {
		case isS3NotFound(err):
			return ErrBucketNotFound
		case strings.Contains(err.Error(), "BucketNotEmpty"):
			return ErrBucketNotEmpty
		}

		return fmt.Errorf("deleting bucket %q: %w", bucket, err)
	}

	return nil
}

func (s *S3Store) Put(
	ctx context.Context, bucket, key string,
	body io.Reader, size int64, contentType string,
) (domain.ObjectInfo, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isS3NotFound(err) {
			return domain.ObjectInfo{}, ErrBucketNotFound
		}

		return domain.ObjectInfo{}, fmt.Errorf("putting object %q: %w", key, err)
	}

	return domain.ObjectInfo{
		Key:         key,
		Size:        size,
		ETag:        aws.ToString(out.ETag),
		ContentType: contentType,
	}, nil
}

func (s *S3Store) Stat(ctx context.Context, bucket, key string) (domain.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return domain.ObjectInfo{}, ErrObjectNotFound
		}

		return domain.ObjectInfo{}, fmt.Errorf("heading object %q: %w", key, err)
	}

	return headToInfo(key, out), nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) (domain.Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return domain.Object{}, ErrObjectNotFound
		}

		return domain.Object{}, fmt.Errorf("getting object %q: %w", key, err)
	}

	info := domain.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ETag:        aws.ToString(out.ETag),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}

	return domain.Object{Info: info, Body: out.Body}, nil
}

func (s *S3Store) Remove(ctx context.Context, bucket string, keys ...string) error {
	// DeleteObjects caps out at 1000 keys per call
	const batchSize = 1000

	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))

		objects := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			if isS3NotFound(err) {
				return ErrBucketNotFound
			}

			return fmt.Errorf("deleting objects in %q: %w", bucket, err)
		}

		for _, e := range out.Errors {
			// Missing keys are fine; anything else is a real failure
			if code := aws.ToString(e.Code); code != "NoSuchKey" {
				return fmt.Errorf("deleting object %q: %s", aws.ToString(e.Key), code)
			}
		}
	}

	return nil
}

func (s *S3Store) List(
	ctx context.Context, bucket, prefix string, recursive bool,
) ([]domain.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	var objects []domain.ObjectInfo

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isS3NotFound(err) {
				return nil, ErrBucketNotFound
			}

			return nil, fmt.Errorf("listing objects under %q: %w", prefix, err)
		}

		// Folder placeholders surface as zero-size entries with a
		// trailing slash, matching how object browsers render them.
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				objects = append(objects, domain.ObjectInfo{Key: *cp.Prefix})
			}
		}

		for _, obj := range page.Contents {
			info := domain.ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				ETag: aws.ToString(obj.ETag),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}

			objects = append(objects, info)
		}
	}

	return objects, nil
}

func headToInfo(key string, out *s3.HeadObjectOutput) domain.ObjectInfo {
	info := domain.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ETag:        aws.ToString(out.ETag),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}

	return info
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}

	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NoSuchBucket") ||
		strings.Contains(msg, "NotFound")
}

func isS3BucketExists(err error) bool {
	var owned *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}

	var exists *s3types.BucketAlreadyExists
	if errors.As(err, &exists) {
		return true
	}

	return strings.Contains(err.Error(), "BucketAlready")
}
