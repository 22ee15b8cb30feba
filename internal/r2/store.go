package r2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"studyhub/internal/apperr"
	"studyhub/internal/models"
	"studyhub/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	metaName          = "name"
	metaCreatedAt     = "created-at"
	metaQuestionCount = "question-count"

	// bound on re-reads when another writer wins the ETag race
	maxUpdateAttempts = 5
)

// ObjectAPI is the subset of *s3.Client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store keeps one JSON object per test in an R2 bucket. The summary fields
// ride along as object metadata so List only needs HEAD requests.
//
// Updates are optimistic: the object is rewritten with If-Match on the ETag
// that was read, and re-read on conflict.
type Store struct {
	api    ObjectAPI
	bucket string
	prefix string
	locks  *store.KeyLock
}

func NewStore(api ObjectAPI, bucket, prefix string) *Store {
	return &Store{api: api, bucket: bucket, prefix: prefix, locks: store.NewKeyLock()}
}

func (s *Store) key(id string) string { return s.prefix + id + ".json" }

func (s *Store) Create(ctx context.Context, t *models.Test) (string, error) {
	store.PrepareNew(t)
	if err := s.put(ctx, t, nil); err != nil {
		if isPreconditionFailed(err) {
			return "", apperr.Storage("create test "+t.ID, err)
		}
		return "", err
	}
	log.Printf("INFO: r2 store: created test %s (%d questions)", t.ID, len(t.Questions))
	return t.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Test, error) {
	if err := store.CheckID(id); err != nil {
		return nil, err
	}
	t, _, err := s.get(ctx, id)
	return t, err
}

func (s *Store) List(ctx context.Context) ([]models.TestSummary, error) {
	out := []models.TestSummary{}
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, apperr.Storage("list test objects", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), ".json")
			summary, err := s.head(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, summary)
		}
	}
	store.SortSummaries(out)
	return out, nil
}

func (s *Store) AppendSubmission(ctx context.Context, testID string, sub models.Submission) error {
	return s.update(ctx, testID, func(t *models.Test) error {
		t.Results = append(t.Results, sub)
		return nil
	})
}

func (s *Store) Close() error { return nil }

func (s *Store) update(ctx context.Context, id string, fn func(*models.Test) error) error {
	if err := store.CheckID(id); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		t, etag, err := s.get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		err = s.put(ctx, t, etag)
		if err == nil {
			return nil
		}
		if !isPreconditionFailed(err) {
			return err
		}
		log.Printf("WARN: r2 store: test %s changed underneath update (attempt %d), re-reading", id, attempt)
	}
	return apperr.Storage("update test "+id, fmt.Errorf("gave up after %d conflicting writes", maxUpdateAttempts))
}

func (s *Store) get(ctx context.Context, id string) (*models.Test, *string, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, store.NotFound(id)
		}
		return nil, nil, apperr.Storage("get test "+id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, apperr.Storage("read test "+id, err)
	}
	var t models.Test
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, nil, apperr.Storage("decode test "+id, err)
	}
	return &t, out.ETag, nil
}

// put writes t. A nil etag means the object must not exist yet.
func (s *Store) put(ctx context.Context, t *models.Test, etag *string) error {
	data, err := json.Marshal(t)
	if err != nil {
		return apperr.Storage("encode test "+t.ID, err)
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(t.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			metaName:          url.QueryEscape(t.Name),
			metaCreatedAt:     strconv.FormatInt(t.CreatedAt.UnixMilli(), 10),
			metaQuestionCount: strconv.Itoa(len(t.Questions)),
		},
	}
	if etag == nil {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = etag
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		if isPreconditionFailed(err) {
			return err
		}
		return apperr.Storage("put test "+t.ID, err)
	}
	return nil
}

func (s *Store) head(ctx context.Context, id string) (models.TestSummary, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return models.TestSummary{}, apperr.Storage("head test "+id, err)
	}
	name, err := url.QueryUnescape(out.Metadata[metaName])
	if err != nil {
		name = out.Metadata[metaName]
	}
	created, _ := strconv.ParseInt(out.Metadata[metaCreatedAt], 10, 64)
	count, _ := strconv.Atoi(out.Metadata[metaQuestionCount])
	return models.TestSummary{
		ID:            id,
		Name:          name,
		CreatedAt:     time.UnixMilli(created).UTC(),
		QuestionCount: count,
	}, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
