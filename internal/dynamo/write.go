package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/lazypower/rapport/internal/signal"
)

func (s *Store) put(ctx context.Context, table string, item any, condition string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	in := &dynamodb.PutItemInput{TableName: aws.String(table), Item: av}
	if condition != "" {
		in.ConditionExpression = aws.String(condition)
	}
	if _, err := s.api.PutItem(ctx, in); err != nil {
		return fmt.Errorf("put item in %s: %w", table, err)
	}
	return nil
}

func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// RecordInteraction stores a new interaction. ID is generated if empty.
func (s *Store) RecordInteraction(ctx context.Context, i *signal.Interaction) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return s.put(ctx, s.tables.InteractionsTable, newInteractionItem(i), "")
}

// UpsertUser creates or refreshes a member's display metadata.
func (s *Store) UpsertUser(ctx context.Context, u *signal.User) error {
	if u.ID == "" || u.Guild == "" {
		return fmt.Errorf("upsert user: id and guild required")
	}
	return s.put(ctx, s.tables.UsersTable, userItem{
		PK:          userKey(u.Guild, u.ID),
		SK:          profileSK,
		ID:          u.ID,
		Guild:       u.Guild,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		UpdatedAt:   time.Now().UnixMilli(),
	}, "")
}

// OpenVoiceSession records a join. The OPEN marker is written first with a
// condition, so a second concurrent join for the same member fails.
func (s *Store) OpenVoiceSession(ctx context.Context, vs *signal.VoiceSession) error {
	if vs.User == "" || vs.Guild == "" || vs.ChannelID == "" {
		return fmt.Errorf("open voice session: user, guild and channel_id required")
	}
	if err := vs.Validate(); err != nil {
		return fmt.Errorf("open voice session: %w", err)
	}
	if vs.ID == "" {
		vs.ID = uuid.NewString()
	}
	item := newSessionItem(vs)

	if vs.Open() {
		err := s.put(ctx, s.tables.SessionsTable, item.marker(), "attribute_not_exists(pk)")
		if conditionFailed(err) {
			return fmt.Errorf("open voice session for %s: %w", vs.User, signal.ErrSessionAlreadyOpen)
		}
		if err != nil {
			return err
		}
	}

	if err := s.put(ctx, s.tables.SessionsTable, item, ""); err != nil {
		if vs.Open() {
			if derr := s.deleteMarker(ctx, vs.User, vs.Guild); derr != nil {
				s.log.Warn("orphaned open-session marker", "user", vs.User, "guild", vs.Guild, "err", derr)
			}
		}
		return err
	}
	return nil
}

// CloseVoiceSession sets left_at on the member's open session and returns it.
func (s *Store) CloseVoiceSession(ctx context.Context, user, guild string, at time.Time) (*signal.VoiceSession, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.SessionsTable),
		Key:            map[string]types.AttributeValue{"pk": str(userKey(guild, user)), "sk": str(openMarker)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get open voice session: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("close voice session for %s: %w", user, signal.ErrNoOpenSession)
	}
	var marker sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &marker); err != nil {
		return nil, fmt.Errorf("unmarshal open voice session: %w", err)
	}
	vs := marker.session()
	if at.Before(vs.JoinedAt) {
		return nil, fmt.Errorf("close voice session %s: %w", vs.ID, signal.ErrMalformedSession)
	}

	leftMs := at.UnixMilli()
	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tables.SessionsTable),
		Key:              map[string]types.AttributeValue{"pk": str(marker.PK), "sk": str(marker.SessionSK)},
		UpdateExpression: aws.String("SET left_at = :left"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":left": &types.AttributeValueMemberN{Value: fmt.Sprint(leftMs)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("close voice session: %w", err)
	}
	if err := s.deleteMarker(ctx, user, guild); err != nil {
		return nil, err
	}

	left := fromMillis(leftMs)
	vs.LeftAt = &left
	return &vs, nil
}

func (s *Store) deleteMarker(ctx context.Context, user, guild string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.SessionsTable),
		Key:       map[string]types.AttributeValue{"pk": str(userKey(guild, user)), "sk": str(openMarker)},
	})
	if err != nil {
		return fmt.Errorf("delete open-session marker: %w", err)
	}
	return nil
}

// OpenVoiceSessions lists every session still open, across guilds.
func (s *Store) OpenVoiceSessions(ctx context.Context) ([]signal.VoiceSession, error) {
	p := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:                 aws.String(s.tables.SessionsTable),
		FilterExpression:          aws.String("sk = :open"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":open": str(openMarker)},
	})

	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list open voice sessions: %w", err)
		}
		items = append(items, page.Items...)
	}
	return unmarshalSessions(items)
}
