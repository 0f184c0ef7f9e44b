package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// nextOrderID claims the next order id with an atomic $inc. The counter is
// first raised with $max to the largest existing numeric order id so orders
// inserted without the counter are never reused.
func (p *Provider) nextOrderID(ctx context.Context) (int64, error) {
	maxID, err := p.maxOrderID(ctx)
	if err != nil {
		return 0, err
	}

	if err := p.upsertCounter(ctx, bson.D{{Key: "$max", Value: bson.D{{Key: "seq", Value: maxID}}}}); err != nil {
		return 0, fmt.Errorf("seed order counter: %w", err)
	}

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err = p.counters().FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: orderCounterID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("increment order counter: %w", err)
	}

	return counter.Seq, nil
}

func (p *Provider) maxOrderID(ctx context.Context) (int64, error) {
	var last struct {
		ID int64 `bson:"_id"`
	}
	err := p.orders().FindOne(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$type", Value: "number"}}}},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}}).SetProjection(bson.D{{Key: "_id", Value: 1}}),
	).Decode(&last)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("find max order id: %w", err)
	}
	return last.ID, nil
}

// upsertCounter retries once when two first-time upserts race on _id.
func (p *Provider) upsertCounter(ctx context.Context, update bson.D) error {
	filter := bson.D{{Key: "_id", Value: orderCounterID}}
	opts := options.Update().SetUpsert(true)

	_, err := p.counters().UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = p.counters().UpdateOne(ctx, filter, update, opts)
	}
	return err
}
