package dynamo

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// fakeAPI is an in-memory DynamoDB that understands exactly the key
// conditions this package issues. Query results are paged pageSize items
// at a time to exercise pagination.
type fakeAPI struct {
	mu       sync.Mutex
	tables   map[string][]item
	pageSize int
	err      error
	queries  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{tables: make(map[string][]item), pageSize: 2}
}

func attr(it item, name string) string {
	switch v := it[name].(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func (f *fakeAPI) find(table string, key item) int {
	for i, it := range f.tables[table] {
		if attr(it, "pk") == attr(key, "pk") && attr(it, "sk") == attr(key, "sk") {
			return i
		}
	}
	return -1
}

func (f *fakeAPI) page(items []item, start item, limit *int32) ([]item, item) {
	offset := 0
	if start != nil {
		offset, _ = strconv.Atoi(attr(start, "offset"))
	}
	size := f.pageSize
	if limit != nil && int(*limit) < size {
		size = int(*limit)
	}
	end := offset + size
	if end >= len(items) {
		return items[offset:], nil
	}
	return items[offset:end], item{"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)}}
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries++

	keyAttr := "pk"
	switch aws.ToString(in.IndexName) {
	case fromIndex:
		keyAttr = "from_pk"
	case channelIndex:
		keyAttr = "channel_pk"
	}
	vals := in.ExpressionAttributeValues

	var matched []item
	for _, it := range f.tables[aws.ToString(in.TableName)] {
		if attr(it, keyAttr) != attr(vals, ":pk") {
			continue
		}
		sk := attr(it, "sk")
		if since := attr(vals, ":since"); since != "" && sk < since {
			continue
		}
		if prefix := attr(vals, ":join"); prefix != "" && !strings.HasPrefix(sk, prefix) {
			continue
		}
		matched = append(matched, it)
	}
	desc := in.ScanIndexForward != nil && !*in.ScanIndexForward
	sort.SliceStable(matched, func(i, j int) bool {
		if desc {
			return attr(matched[i], "sk") > attr(matched[j], "sk")
		}
		return attr(matched[i], "sk") < attr(matched[j], "sk")
	})

	items, next := f.page(matched, in.ExclusiveStartKey, in.Limit)
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: next}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var matched []item
	for _, it := range f.tables[aws.ToString(in.TableName)] {
		if attr(it, "sk") == attr(in.ExpressionAttributeValues, ":open") {
			matched = append(matched, it)
		}
	}
	items, next := f.page(matched, in.ExclusiveStartKey, in.Limit)
	return &dynamodb.ScanOutput{Items: items, LastEvaluatedKey: next}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	i := f.find(aws.ToString(in.TableName), in.Key)
	if i < 0 {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: f.tables[aws.ToString(in.TableName)][i]}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	table := aws.ToString(in.TableName)
	i := f.find(table, in.Item)
	if i >= 0 {
		if aws.ToString(in.ConditionExpression) == "attribute_not_exists(pk)" {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
		f.tables[table][i] = in.Item
		return &dynamodb.PutItemOutput{}, nil
	}
	f.tables[table] = append(f.tables[table], in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	table := aws.ToString(in.TableName)
	i := f.find(table, in.Key)
	if i < 0 {
		return nil, errors.New("fake: update of missing item")
	}
	updated := make(item, len(f.tables[table][i])+1)
	for k, v := range f.tables[table][i] {
		updated[k] = v
	}
	updated["left_at"] = in.ExpressionAttributeValues[":left"]
	f.tables[table][i] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	table := aws.ToString(in.TableName)
	if i := f.find(table, in.Key); i >= 0 {
		f.tables[table] = append(f.tables[table][:i], f.tables[table][i+1:]...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}
