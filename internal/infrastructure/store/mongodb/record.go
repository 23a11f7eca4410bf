package mongodb

import (
	"context"
	"errors"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tfassist/internal/domain/entity"
	"tfassist/internal/domain/repository"
	"tfassist/internal/infrastructure/metrics"
)

const storeName = "mongo"

type MongoRecordRepo struct {
	col *mongo.Collection
}

var _ repository.RecordRepository = (*MongoRecordRepo)(nil)

func NewMongoRecordRepo(ctx context.Context, db *mongo.Database) (*MongoRecordRepo, error) {
	col := db.Collection("request_records")

	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{bson.E{Key: "kind", Value: 1}, bson.E{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}

	return &MongoRecordRepo{
		col: col,
	}, nil
}

func (r *MongoRecordRepo) Create(ctx context.Context, rec *entity.RequestRecord) error {
	metrics.IncHistoryOp(storeName, "put")

	_, err := r.col.InsertOne(ctx, rec)
	if err != nil {
		metrics.IncError("mongo_record_repo", "create_error")
		return err
	}
	return nil
}

func (r *MongoRecordRepo) GetByID(ctx context.Context, id string) (*entity.RequestRecord, error) {
	metrics.IncHistoryOp(storeName, "get")

	var rec entity.RequestRecord
	err := r.col.FindOne(ctx, bson.M{"id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrRecordNotFound
		}
		metrics.IncError("mongo_record_repo", "get_error")
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRecordRepo) List(ctx context.Context, filter entity.RecordFilter) ([]*entity.RequestRecord, error) {
	metrics.IncHistoryOp(storeName, "list")

	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "created_at", Value: -1}}).
		SetLimit(int64(filter.NormalizedLimit()))

	cur, err := r.col.Find(ctx, query, opts)
	if err != nil {
		metrics.IncError("mongo_record_repo", "list_error")
		return nil, err
	}
	defer func() {
		err := cur.Close(ctx)
		if err != nil {
			log.Printf("close cursor err: %s", err)
		}
	}()

	records := make([]*entity.RequestRecord, 0)
	for cur.Next(ctx) {
		var rec entity.RequestRecord
		if err := cur.Decode(&rec); err != nil {
			metrics.IncError("mongo_record_repo", "list_decode_error")
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_record_repo", "list_cursor_error")
		return nil, err
	}
	return records, nil
}
