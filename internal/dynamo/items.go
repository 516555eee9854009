package dynamo

import (
	"github.com/lazypower/rapport/internal/signal"
)

type interactionItem struct {
	PK        string            `dynamodbav:"pk"`
	SK        string            `dynamodbav:"sk"`
	FromPK    string            `dynamodbav:"from_pk"`
	ID        string            `dynamodbav:"id"`
	Guild     string            `dynamodbav:"guild"`
	FromUser  string            `dynamodbav:"from_user"`
	ToUser    string            `dynamodbav:"to_user"`
	Kind      string            `dynamodbav:"kind"`
	CreatedAt int64             `dynamodbav:"created_at"`
	Metadata  map[string]string `dynamodbav:"metadata,omitempty"`
}

func newInteractionItem(i *signal.Interaction) interactionItem {
	return interactionItem{
		PK:        pairKey(i.Guild, i.FromUser, i.ToUser),
		SK:        tsKey("TS", i.Timestamp, i.ID),
		FromPK:    fromKey(i.Guild, i.FromUser),
		ID:        i.ID,
		Guild:     i.Guild,
		FromUser:  i.FromUser,
		ToUser:    i.ToUser,
		Kind:      string(i.Kind),
		CreatedAt: i.Timestamp.UnixMilli(),
		Metadata:  i.Metadata,
	}
}

func (it interactionItem) interaction() signal.Interaction {
	return signal.Interaction{
		ID:        it.ID,
		FromUser:  it.FromUser,
		ToUser:    it.ToUser,
		Guild:     it.Guild,
		Kind:      signal.Kind(it.Kind),
		Timestamp: fromMillis(it.CreatedAt),
		Metadata:  it.Metadata,
	}
}

// sessionItem is both a stored session and the OPEN marker. The marker has
// no channel_pk so it stays out of the channel index, and SessionSK points
// at the session row it mirrors.
type sessionItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	ChannelPK   string `dynamodbav:"channel_pk,omitempty"`
	SessionSK   string `dynamodbav:"session_sk,omitempty"`
	ID          string `dynamodbav:"id"`
	Guild       string `dynamodbav:"guild"`
	User        string `dynamodbav:"user_id"`
	ChannelID   string `dynamodbav:"channel_id"`
	ChannelName string `dynamodbav:"channel_name,omitempty"`
	JoinedAt    int64  `dynamodbav:"joined_at"`
	LeftAt      *int64 `dynamodbav:"left_at,omitempty"`
}

func newSessionItem(s *signal.VoiceSession) sessionItem {
	it := sessionItem{
		PK:          userKey(s.Guild, s.User),
		SK:          tsKey("JOIN", s.JoinedAt, s.ID),
		ChannelPK:   channelKey(s.Guild, s.ChannelID),
		ID:          s.ID,
		Guild:       s.Guild,
		User:        s.User,
		ChannelID:   s.ChannelID,
		ChannelName: s.ChannelName,
		JoinedAt:    s.JoinedAt.UnixMilli(),
	}
	if s.LeftAt != nil {
		ms := s.LeftAt.UnixMilli()
		it.LeftAt = &ms
	}
	return it
}

func (it sessionItem) marker() sessionItem {
	m := it
	m.SessionSK = it.SK
	m.SK = openMarker
	m.ChannelPK = ""
	return m
}

func (it sessionItem) session() signal.VoiceSession {
	s := signal.VoiceSession{
		ID:          it.ID,
		User:        it.User,
		Guild:       it.Guild,
		ChannelID:   it.ChannelID,
		ChannelName: it.ChannelName,
		JoinedAt:    fromMillis(it.JoinedAt),
	}
	if it.LeftAt != nil {
		t := fromMillis(*it.LeftAt)
		s.LeftAt = &t
	}
	return s
}

type userItem struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	ID          string `dynamodbav:"user_id"`
	Guild       string `dynamodbav:"guild"`
	Username    string `dynamodbav:"username"`
	DisplayName string `dynamodbav:"display_name,omitempty"`
	UpdatedAt   int64  `dynamodbav:"updated_at"`
}
