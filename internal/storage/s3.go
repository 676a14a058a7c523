package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of *s3.Client used by S3SegmentStore.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const segmentSuffix = ".bin"

// S3SegmentStore emulates an append blob on an S3-compatible bucket (AWS S3,
// MinIO, etc.). S3 objects are immutable, so every chunk becomes its own
// object with a zero-padded sequence number; listing the blob prefix in
// lexical order yields the stream in append order.
type S3SegmentStore struct {
	client s3API
	bucket string
	blob   string

	mu  sync.Mutex
	seq uint64
}

var _ Appender = (*S3SegmentStore)(nil)

type S3Options struct {
	Client *s3.Client
	Bucket string
	Prefix string // optional key prefix, e.g. "streams"
	Blob   string // logical blob name under the prefix
}

func NewS3SegmentStore(opts S3Options) (*S3SegmentStore, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: s3 client is nil", ErrInvalidEndpoint)
	}
	return newS3SegmentStore(opts.Client, opts.Bucket, opts.Prefix, opts.Blob)
}

func newS3SegmentStore(client s3API, bucket, prefix, blob string) (*S3SegmentStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("%w: s3 bucket is empty", ErrInvalidEndpoint)
	}
	blob = strings.Trim(strings.TrimSpace(blob), "/")
	if blob == "" {
		return nil, fmt.Errorf("%w: s3 blob name is empty", ErrInvalidEndpoint)
	}
	return &S3SegmentStore{
		client: client,
		bucket: bucket,
		blob:   path.Join(strings.Trim(strings.TrimSpace(prefix), "/"), blob),
	}, nil
}

func (s *S3SegmentStore) manifestKey() string {
	return path.Join(s.blob, "manifest")
}

func (s *S3SegmentStore) segmentKey(seq uint64) string {
	return path.Join(s.blob, fmt.Sprintf("%012d", seq)+segmentSuffix)
}

// parseSegmentSeq returns the sequence number of a segment key directly
// under dir, or false for any other key.
func parseSegmentSeq(dir, key string) (uint64, bool) {
	name, ok := strings.CutPrefix(key, dir+"/")
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(name, segmentSuffix)
	if !ok || len(digits) != 12 {
		return 0, false
	}
	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Create resumes after the highest existing segment, then writes an empty
// manifest object marking the stream.
func (s *S3SegmentStore) Create(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	s.seq = next

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.manifestKey()),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put manifest: %w", err)
	}
	return nil
}

func (s *S3SegmentStore) nextSeq(ctx context.Context) (uint64, error) {
	var next uint64
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.blob + "/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("s3 list segments: %w", err)
		}
		for _, obj := range page.Contents {
			seq, ok := parseSegmentSeq(s.blob, aws.ToString(obj.Key))
			if ok && seq >= next {
				next = seq + 1
			}
		}
	}
	return next, nil
}

// Append stores chunk as the next segment. The sequence number only advances
// on success so a failed chunk leaves no gap a reader would notice.
func (s *S3SegmentStore) Append(ctx context.Context, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.segmentKey(s.seq)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(chunk),
		ContentLength: aws.Int64(int64(len(chunk))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	s.seq++
	return nil
}
