// Package archive writes roadmap sync snapshots to object storage for
// long-term retention, at paths like:
//
//	s3://<bucket>/<prefix>/roadmap/YYYY/MM/DD/<ideaID>-<unix>.json
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/incuhub/roadmap-sync/internal/models"
)

// S3Archiver uploads snapshot envelopes to S3. Region and credentials come
// from the environment (AWS_REGION, AWS_PROFILE, access keys, etc.).
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver creates an archiver for the given bucket and optional prefix.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

type snapshotEnvelope struct {
	Snapshot models.SyncSnapshot     `json:"snapshot"`
	Timeline []models.StageViewModel `json:"timeline"`
}

// ArchiveSnapshot uploads one snapshot plus its derived timeline.
func (a *S3Archiver) ArchiveSnapshot(ctx context.Context, snap models.SyncSnapshot, timeline []models.StageViewModel) error {
	if snap.IdeaID == "" {
		return fmt.Errorf("snapshot idea id required")
	}
	body, err := json.Marshal(snapshotEnvelope{Snapshot: snap, Timeline: timeline})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ts := snap.SyncedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	year, month, day := ts.Date()
	objectKey := path.Join(a.prefix, "roadmap",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s-%d.json", snap.IdeaID, ts.Unix()),
	)

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
