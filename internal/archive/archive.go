// Package archive implements the optional backup-before-hard-delete
// safety net: before retention permanently removes rows below a delete
// watermark, archive can ship a JSONL snapshot of those rows to an
// S3-compatible bucket so the hard delete is recoverable from cold
// storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/relaydb/sqljournal/internal/row"
)

// header is the first JSONL record written for a snapshot.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	PersistenceID string    `json:"persistence_id"`
	MaxSequenceNr int64     `json:"max_sequence_nr"`
	RowCount      int       `json:"row_count"`
}

type record struct {
	Type string       `json:"type"`
	Data row.EventRow `json:"data"`
}

// Destination uploads a snapshot's bytes somewhere durable.
type Destination interface {
	Write(ctx context.Context, key string, data []byte) error
}

// S3Destination writes snapshots to an S3-compatible bucket under a
// per-call object key.
type S3Destination struct {
	client *s3.Client
	bucket string
}

// NewS3Destination creates an S3 destination. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, region, endpoint string) (*S3Destination, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
	}, nil
}

func (d *S3Destination) Write(ctx context.Context, key string, data []byte) error {
	contentType := "application/x-ndjson"
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// Archiver snapshots rows about to be hard-deleted before retention
// removes them.
type Archiver struct {
	dest Destination
}

// New constructs an Archiver writing through dest.
func New(dest Destination) *Archiver {
	return &Archiver{dest: dest}
}

// Snapshot encodes rows as JSONL (one header record, then one record
// per row) and writes it to a key derived from persistenceID and
// maxSeq, so repeated deletes against the same stream don't collide.
func (a *Archiver) Snapshot(ctx context.Context, persistenceID string, maxSeq int64, rows []row.EventRow) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		PersistenceID: persistenceID,
		MaxSequenceNr: maxSeq,
		RowCount:      len(rows),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range rows {
		if err := enc.Encode(record{Type: "event_row", Data: r}); err != nil {
			return fmt.Errorf("encode row for %s: %w", persistenceID, err)
		}
	}

	key := fmt.Sprintf("sqljournal/%s/%d.jsonl", persistenceID, maxSeq)
	return a.dest.Write(ctx, key, buf.Bytes())
}
