package dynamo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/money"
)

// UserIndex is the GSI keyed by user_id with created_at as sort key
const UserIndex = "user_id-index"

// API is the subset of the DynamoDB client used by OrderRepository
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// OrderRepository keeps each order, lines included, in a single DynamoDB item
// so creation is one conditional put.
type OrderRepository struct {
	client    API
	tableName string
}

// dynamoOrder represents the DynamoDB item structure
type dynamoOrder struct {
	OrderID          string       `dynamodbav:"order_id"`
	UserID           string       `dynamodbav:"user_id"`
	Status           string       `dynamodbav:"status"`
	TotalCents       int64        `dynamodbav:"total_cents"`
	Currency         string       `dynamodbav:"currency"`
	PaymentSessionID string       `dynamodbav:"payment_session_id,omitempty"`
	PaymentRef       string       `dynamodbav:"payment_ref,omitempty"`
	Lines            []dynamoLine `dynamodbav:"lines"`
	CreatedAt        string       `dynamodbav:"created_at"`
	UpdatedAt        string       `dynamodbav:"updated_at"`
}

type dynamoLine struct {
	ID             string `dynamodbav:"id"`
	ProductID      string `dynamodbav:"product_id"`
	VariantID      string `dynamodbav:"variant_id,omitempty"`
	ProductName    string `dynamodbav:"product_name"`
	Quantity       int    `dynamodbav:"quantity"`
	UnitPriceCents int64  `dynamodbav:"unit_price_cents"`
}

func NewOrderRepository(client API, tableName string) *OrderRepository {
	return &OrderRepository{client: client, tableName: tableName}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	av, err := attributevalue.MarshalMap(toItem(o))
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(order_id)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		// A retried put whose first attempt landed finds its own item
		existing, getErr := r.Get(ctx, o.ID)
		if getErr != nil {
			return getErr
		}
		if !existing.SameRecord(o) {
			return fmt.Errorf("%w: %s", order.ErrOrderExists, o.ID)
		}
		return nil
	}
	if err != nil {
		return classify("put order", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (*order.Order, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            orderKey(orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("get order", err)
	}
	if len(out.Item) == 0 {
		return nil, order.ErrOrderNotFound
	}

	var item dynamoOrder
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return fromItem(item), nil
}

// UpdateStatus is a conditional UpdateItem on the status attribute
func (r *OrderRepository) UpdateStatus(ctx context.Context, u order.StatusUpdate) (order.Status, bool, error) {
	values := map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: string(u.To)},
		":at": &types.AttributeValueMemberS{Value: u.At.UTC().Format(time.RFC3339Nano)},
	}
	placeholders := make([]string, len(u.From))
	for i, s := range u.From {
		p := fmt.Sprintf(":f%d", i)
		placeholders[i] = p
		values[p] = &types.AttributeValueMemberS{Value: string(s)}
	}

	update := "SET #status = :to, updated_at = :at"
	if u.PaymentRef != "" {
		update += ", payment_ref = :ref"
		values[":ref"] = &types.AttributeValueMemberS{Value: u.PaymentRef}
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       orderKey(u.OrderID),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(fmt.Sprintf("attribute_exists(order_id) AND #status IN (%s)", strings.Join(placeholders, ", "))),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("update order status", err)
	}

	var prev struct {
		Status string `dynamodbav:"status"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &prev); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal previous status: %w", err)
	}
	return order.Status(prev.Status), true, nil
}

func (r *OrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 orderKey(orderID),
		UpdateExpression:    aws.String("SET payment_session_id = :sid"),
		ConditionExpression: aws.String("attribute_exists(order_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return order.ErrOrderNotFound
	}
	if err != nil {
		return classify("set payment session", err)
	}
	return nil
}

// ListByUser queries the user index newest first, following pagination
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	var orders []*order.Order
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(UserIndex),
			KeyConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ScanIndexForward:  aws.Bool(false), // newest first
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, classify("list orders", err)
		}
		for _, av := range out.Items {
			var item dynamoOrder
			if err := attributevalue.UnmarshalMap(av, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal order: %w", err)
			}
			orders = append(orders, fromItem(item))
		}
		if len(out.LastEvaluatedKey) == 0 {
			return orders, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func toItem(o *order.Order) dynamoOrder {
	item := dynamoOrder{
		OrderID:          o.ID,
		UserID:           o.UserID,
		Status:           string(o.Status),
		TotalCents:       o.Total.Cents(),
		Currency:         o.Currency,
		PaymentSessionID: o.PaymentSessionID,
		PaymentRef:       o.PaymentRef,
		Lines:            make([]dynamoLine, len(o.Lines)),
		CreatedAt:        o.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for i, l := range o.Lines {
		item.Lines[i] = dynamoLine{
			ID:             l.ID,
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			ProductName:    l.ProductName,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPrice.Cents(),
		}
	}
	return item
}

func fromItem(item dynamoOrder) *order.Order {
	createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	o := &order.Order{
		ID:               item.OrderID,
		UserID:           item.UserID,
		Status:           order.Status(item.Status),
		Total:            money.FromCents(item.TotalCents),
		Currency:         item.Currency,
		PaymentSessionID: item.PaymentSessionID,
		PaymentRef:       item.PaymentRef,
		Lines:            make([]order.Line, len(item.Lines)),
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
	for i, l := range item.Lines {
		o.Lines[i] = order.Line{
			ID:          l.ID,
			OrderID:     item.OrderID,
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   money.FromCents(l.UnitPriceCents),
		}
	}
	return o
}

// classify wraps throttling, service-side and transport failures with
// store.ErrUnavailable
func classify(op string, err error) error {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		internal   *types.InternalServerError
		netErr     net.Error
	)
	if errors.As(err, &throughput) || errors.As(err, &limit) || errors.As(err, &internal) ||
		errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
