package s3backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/stakeaware/accessgate/app/models"
)

// Client wraps the S3 client with ledger-backup functionality. Document-store
// deploys run on ephemeral disks, so periodic snapshots are the only durable
// copy of the ledger.
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new S3 backup client
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 backup is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (Backblaze B2) need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
	}

	if err := client.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[S3Backup] Successfully initialized S3 client for bucket: %s", cfg.GetBucketName())
	return client, nil
}

// testConnection tests the S3 connection by checking if the bucket exists
func (c *Client) testConnection() error {
	ctx := context.Background()

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.GetBucketName()),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", c.config.GetBucketName(), err)
	}
	return nil
}

// UploadSnapshot uploads one serialized ledger snapshot.
func (c *Client) UploadSnapshot(ctx context.Context, objectKey string, data []byte) error {
	bucketName := c.config.GetBucketName()

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucketName),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"upload-source": "accessgate-ledger-backup",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Infof("[S3Backup] Uploaded ledger snapshot: s3://%s/%s (%d bytes)", bucketName, objectKey, len(data))
	return nil
}

// SnapshotSource provides the records to back up.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]models.SubscriptionRecord, error)
}

// BackupLedger serializes the current ledger snapshot keyed by email and
// uploads it under a date-based object key.
func (c *Client) BackupLedger(ctx context.Context, source SnapshotSource) error {
	recs, err := source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot ledger: %w", err)
	}

	byEmail := make(map[string]models.SubscriptionRecord, len(recs))
	for _, rec := range recs {
		byEmail[rec.Email] = rec
	}
	data, err := json.MarshalIndent(byEmail, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger snapshot: %w", err)
	}

	return c.UploadSnapshot(ctx, c.config.SnapshotKey(time.Now()), data)
}
