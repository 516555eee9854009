package dynamo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lazypower/rapport/internal/interval"
	"github.com/lazypower/rapport/internal/signal"
)

// maxPage is the largest page we ask DynamoDB for.
const maxPage = 1000

func str(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func pageLimit(limit int) *int32 {
	if limit <= 0 || limit > maxPage {
		return nil
	}
	return aws.Int32(int32(limit))
}

// query follows pagination until limit items are collected (limit <= 0
// reads everything).
func (s *Store) query(ctx context.Context, in *dynamodb.QueryInput, limit int) ([]map[string]types.AttributeValue, error) {
	in.Limit = pageLimit(limit)
	p := dynamodb.NewQueryPaginator(s.api, in)

	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", aws.ToString(in.TableName), err)
		}
		items = append(items, page.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
	}
	return items, nil
}

// FetchInteractions returns interactions from -> to in guild, newest first.
func (s *Store) FetchInteractions(ctx context.Context, from, to, guild string, limit int) ([]signal.Interaction, error) {
	items, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.InteractionsTable),
		KeyConditionExpression:    aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": str(pairKey(guild, from, to))},
		ScanIndexForward:          aws.Bool(false),
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch interactions: %w", err)
	}

	var rows []interactionItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal interactions: %w", err)
	}
	out := make([]signal.Interaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.interaction())
	}
	return out, nil
}

// FetchVoiceSessions returns user's sessions in guild, newest first.
func (s *Store) FetchVoiceSessions(ctx context.Context, user, guild string, limit int) ([]signal.VoiceSession, error) {
	items, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.SessionsTable),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :join)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   str(userKey(guild, user)),
			":join": str("JOIN#"),
		},
		ScanIndexForward: aws.Bool(false),
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch voice sessions: %w", err)
	}
	return unmarshalSessions(items)
}

func unmarshalSessions(items []map[string]types.AttributeValue) ([]signal.VoiceSession, error) {
	var rows []sessionItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal voice sessions: %w", err)
	}
	out := make([]signal.VoiceSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.session())
	}
	return out, nil
}

// TotalVoiceMinutes sums every session of user in guild; open sessions
// count up to now.
func (s *Store) TotalVoiceMinutes(ctx context.Context, user, guild string, now time.Time) (float64, error) {
	sessions, err := s.FetchVoiceSessions(ctx, user, guild, 0)
	if err != nil {
		return 0, err
	}
	var total time.Duration
	for _, vs := range sessions {
		total += vs.Duration(now)
	}
	return total.Minutes(), nil
}

// TopInteractionPartners counts interactions sent by user per target since
// the given time, largest first.
func (s *Store) TopInteractionPartners(ctx context.Context, user, guild string, since time.Time, limit int) ([]signal.PartnerCount, error) {
	items, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.InteractionsTable),
		IndexName:              aws.String(fromIndex),
		KeyConditionExpression: aws.String("from_pk = :pk AND sk >= :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    str(fromKey(guild, user)),
			":since": str(tsLowerBound("TS", since)),
		},
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("top interaction partners: %w", err)
	}

	var rows []interactionItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal interactions: %w", err)
	}
	counts := make(map[string]float64)
	for _, r := range rows {
		if r.ToUser != user {
			counts[r.ToUser]++
		}
	}
	return rankPartners(counts, limit), nil
}

// TopVoicePartners sums merged co-presence minutes between user and every
// member who shared a channel with them, largest first.
func (s *Store) TopVoicePartners(ctx context.Context, user, guild string, now time.Time, limit int) ([]signal.PartnerCount, error) {
	mine, err := s.FetchVoiceSessions(ctx, user, guild, 0)
	if err != nil {
		return nil, err
	}

	channels := make(map[string]bool)
	for _, vs := range mine {
		channels[vs.ChannelID] = true
	}

	others := make(map[string][]signal.VoiceSession)
	for channel := range channels {
		items, err := s.query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tables.SessionsTable),
			IndexName:                 aws.String(channelIndex),
			KeyConditionExpression:    aws.String("channel_pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": str(channelKey(guild, channel))},
		}, 0)
		if err != nil {
			return nil, fmt.Errorf("top voice partners: %w", err)
		}
		sessions, err := unmarshalSessions(items)
		if err != nil {
			return nil, err
		}
		for _, vs := range sessions {
			if vs.User != user {
				others[vs.User] = append(others[vs.User], vs)
			}
		}
	}

	minutes := make(map[string]float64)
	for partner, theirs := range others {
		if m := interval.CoPresence(mine, theirs, now).TotalMinutes; m > 0 {
			minutes[partner] = m
		}
	}
	return rankPartners(minutes, limit), nil
}

// GetUser returns a member by ID, or nil if unknown.
func (s *Store) GetUser(ctx context.Context, id, guild string) (*signal.User, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tables.UsersTable),
		Key: map[string]types.AttributeValue{
			"pk": str(userKey(guild, id)),
			"sk": str(profileSK),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var it userItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &signal.User{ID: it.ID, Guild: it.Guild, Username: it.Username, DisplayName: it.DisplayName}, nil
}

func rankPartners(m map[string]float64, limit int) []signal.PartnerCount {
	out := make([]signal.PartnerCount, 0, len(m))
	for p, c := range m {
		out = append(out, signal.PartnerCount{Partner: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Partner < out[j].Partner
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
