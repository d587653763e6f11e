package integrations

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"eventmitra/backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client stores event banners, presigned uploads and archived ticket QR codes.
type S3Client struct {
	bucket         string
	endpoint       string
	publicEndpoint string
	client         *s3.Client
	publicPresign  *s3.PresignClient
	now            func() time.Time
}

func NewS3(ctx context.Context, cfg config.S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	publicEndpoint := normalizeEndpoint(cfg.PublicEndpoint, cfg.UseSSL)
	if publicEndpoint == "" {
		publicEndpoint = endpoint
	}

	options := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if endpoint != "" {
		options.BaseEndpoint = aws.String(endpoint)
	}

	client := s3.New(options)
	publicPresign := s3.NewPresignClient(client)
	if publicEndpoint != "" && publicEndpoint != endpoint {
		publicOptions := options
		publicOptions.BaseEndpoint = aws.String(publicEndpoint)
		publicPresign = s3.NewPresignClient(s3.New(publicOptions))
	}

	return &S3Client{
		bucket:         cfg.Bucket,
		endpoint:       endpoint,
		publicEndpoint: publicEndpoint,
		client:         client,
		publicPresign:  publicPresign,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// PresignPutObject returns a 15 minute upload URL and the object's public URL.
func (s *S3Client) PresignPutObject(ctx context.Context, fileName, contentType string) (string, string, error) {
	key := s.uploadKey("uploads", fileName)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}

	resp, err := s.publicPresign.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = 15 * time.Minute
	})
	if err != nil {
		return "", "", err
	}

	return resp.URL, s.publicURLForKey(key), nil
}

// PutObject writes data under key and returns its public URL.
func (s *S3Client) PutObject(ctx context.Context, key, contentType string, data []byte) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", err
	}
	return s.publicURLForKey(key), nil
}

func (s *S3Client) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// BannerKey names a banner variant of an event, e.g. events/12/1700000000-cover.jpg.
func (s *S3Client) BannerKey(eventID int64, variant string) string {
	return fmt.Sprintf("events/%d/%d-%s.jpg", eventID, s.now().UnixNano(), variant)
}

// TicketQRKey is where a ticket's QR PNG is archived.
func TicketQRKey(eventID int64, ticketID string) string {
	return fmt.Sprintf("tickets/%d/%s.png", eventID, ticketID)
}

func (s *S3Client) publicURLForKey(key string) string {
	if s.publicEndpoint == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	}

	endpoint := s.publicEndpoint
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Sprintf("%s/%s/%s", endpoint, s.bucket, key)
	}
	u.Path = path.Join(u.Path, s.bucket, key)
	return u.String()
}

// KeyFromURL recovers the object key from one of our public URLs.
func (s *S3Client) KeyFromURL(rawURL string) (string, bool) {
	if s == nil || s.bucket == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	pathPart := u.Path
	if pathPart == "" {
		return "", false
	}
	needle := "/" + s.bucket + "/"
	if idx := strings.Index(pathPart, needle); idx >= 0 {
		key := strings.TrimPrefix(pathPart[idx+len(needle):], "/")
		if key != "" {
			return key, true
		}
	}
	if host := u.Hostname(); strings.HasPrefix(host, s.bucket+".") {
		key := strings.TrimPrefix(pathPart, "/")
		if key != "" {
			return key, true
		}
	}
	return "", false
}

func (s *S3Client) uploadKey(prefix, fileName string) string {
	safeName := strings.ReplaceAll(strings.TrimSpace(fileName), " ", "-")
	safeName = strings.ReplaceAll(safeName, "/", "-")
	now := s.now()
	return fmt.Sprintf("%s/%d/%02d/%02d/%d-%s", prefix, now.Year(), now.Month(), now.Day(), now.UnixNano(), safeName)
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http") {
		return endpoint
	}
	scheme := "https"
	if !useSSL {
		scheme = "http"
	}
	return scheme + "://" + endpoint
}
