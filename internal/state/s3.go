package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/caisson-io/caisson/internal/ir"
)

// S3 stores the snapshot in an S3 object, with optional locking through a
// DynamoDB table shared by every runner of the same state.
type S3 struct {
	bucket  string
	key     string
	table   string
	encrypt bool

	s3Client *s3.Client
	dbClient *dynamodb.Client
}

func newS3Store(ctx context.Context, settings map[string]string) (*S3, error) {
	bucket := settings["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a 'bucket' setting")
	}
	key := settings["key"]
	if key == "" {
		key = "caisson/state.json"
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region := settings["region"]; region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile := settings["profile"]; profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	st := &S3{
		bucket:   bucket,
		key:      key,
		table:    settings["dynamodb_table"],
		encrypt:  settings["encrypt"] == "true",
		s3Client: s3.NewFromConfig(cfg),
	}
	if st.table != "" {
		st.dbClient = dynamodb.NewFromConfig(cfg)
	}
	return st, nil
}

func (b *S3) source() string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.key)
}

func (b *S3) Load(ctx context.Context) (*ir.Snapshot, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) || strings.Contains(err.Error(), "NoSuchKey") {
			return ir.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read state from %s: %w", b.source(), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read state from %s: %w", b.source(), err)
	}
	return Decode(data, b.source())
}

func (b *S3) Save(ctx context.Context, snap *ir.Snapshot) error {
	snap.Serial++
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(data),
	}
	if b.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}
	if _, err := b.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write state to %s: %w", b.source(), err)
	}
	return nil
}

// Lock writes a lock item keyed by the state path, failing if one already
// exists. Without a DynamoDB table there is nothing to lock against and
// callers proceed unguarded.
func (b *S3) Lock(ctx context.Context, info *LockInfo) (UnlockFunc, error) {
	if b.dbClient == nil {
		return func() error { return nil }, nil
	}

	infoJSON, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock info: %w", err)
	}

	_, err = b.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: b.key},
			"Info":   &dbtypes.AttributeValueMemberS{Value: string(infoJSON)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var conflict *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return nil, &LockError{Holder: b.readLockInfo(ctx)}
		}
		return nil, fmt.Errorf("failed to acquire state lock: %w", err)
	}

	return func() error {
		_, err := b.dbClient.DeleteItem(context.WithoutCancel(ctx), &dynamodb.DeleteItemInput{
			TableName: aws.String(b.table),
			Key: map[string]dbtypes.AttributeValue{
				"LockID": &dbtypes.AttributeValueMemberS{Value: b.key},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to release state lock: %w", err)
		}
		return nil
	}, nil
}

func (b *S3) readLockInfo(ctx context.Context) *LockInfo {
	out, err := b.dbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: b.key},
		},
	})
	if err != nil || out.Item == nil {
		return nil
	}
	attr, ok := out.Item["Info"].(*dbtypes.AttributeValueMemberS)
	if !ok {
		return nil
	}
	var info LockInfo
	if err := json.Unmarshal([]byte(attr.Value), &info); err != nil {
		return nil
	}
	return &info
}
