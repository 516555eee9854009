// Package dynamo stores interactions, voice sessions and users in DynamoDB.
//
// Table layout (all tables use string keys "pk" and "sk"):
//
//	interactions    pk GUILD#<g>#FROM#<a>#TO#<b>   sk TS#<millis>#<id>
//	                GSI from-index:    from_pk GUILD#<g>#FROM#<a>, sk
//	voice sessions  pk GUILD#<g>#USER#<u>          sk JOIN#<millis>#<id>
//	                                               sk OPEN (marker for the open session)
//	                GSI channel-index: channel_pk GUILD#<g>#CHANNEL#<c>, sk
//	users           pk GUILD#<g>#USER#<u>          sk PROFILE
package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/logutil"
)

const (
	fromIndex    = "from-index"
	channelIndex = "channel-index"

	openMarker = "OPEN"
	profileSK  = "PROFILE"
)

// API is the subset of the DynamoDB client used here.
type API interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store reads and writes rapport records in DynamoDB.
type Store struct {
	api    API
	tables config.DynamoConfig
	log    *slog.Logger
}

// New builds a Store using the default AWS credential chain.
func New(ctx context.Context, cfg config.DynamoConfig, log *slog.Logger) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithAPI(client, cfg, log), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, cfg config.DynamoConfig, log *slog.Logger) *Store {
	if log == nil {
		log = logutil.Discard()
	}
	return &Store{api: api, tables: cfg, log: log}
}

func pairKey(guild, from, to string) string {
	return fmt.Sprintf("GUILD#%s#FROM#%s#TO#%s", guild, from, to)
}

func fromKey(guild, from string) string {
	return fmt.Sprintf("GUILD#%s#FROM#%s", guild, from)
}

func userKey(guild, user string) string {
	return fmt.Sprintf("GUILD#%s#USER#%s", guild, user)
}

func channelKey(guild, channel string) string {
	return fmt.Sprintf("GUILD#%s#CHANNEL#%s", guild, channel)
}

// Millisecond timestamps are zero-padded so sort keys order by time.
func tsKey(prefix string, t time.Time, id string) string {
	return fmt.Sprintf("%s#%013d#%s", prefix, t.UnixMilli(), id)
}

func tsLowerBound(prefix string, t time.Time) string {
	return fmt.Sprintf("%s#%013d", prefix, t.UnixMilli())
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
