package repository

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"currency-ledger/internal/domain"
	"currency-ledger/internal/errors"
)

const accountsCollection = "accounts"

type accountDocument struct {
	UserID    string               `bson:"_id"`
	Balance   primitive.Decimal128 `bson:"balance"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
}

func (d *accountDocument) toDomain() (*domain.Account, error) {
	balance, err := decimal.NewFromString(d.Balance.String())
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}
	return &domain.Account{
		UserID:    d.UserID,
		Balance:   balance,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// MongoAccountRepository stores one document per user in the accounts
// collection of the environment's database.
type MongoAccountRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

var _ domain.AccountRepository = (*MongoAccountRepository)(nil)

// OpenMongo connects with the stable API, pings the primary and makes sure
// the balance index exists.
func OpenMongo(ctx context.Context, uri, dbName string, logger *slog.Logger) (*MongoAccountRepository, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, storageError(logger, "connect mongodb", err)
	}

	repo := NewMongoAccountRepository(client, client.Database(dbName), logger)

	if err := repo.Ping(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	_, err = repo.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "balance", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, storageError(logger, "create balance index", err)
	}

	logger.Info("Successfully connected to database", "backend", "mongodb", "database", dbName)
	return repo, nil
}

func NewMongoAccountRepository(client *mongo.Client, db *mongo.Database, logger *slog.Logger) *MongoAccountRepository {
	return &MongoAccountRepository{
		client:     client,
		collection: db.Collection(accountsCollection),
		logger:     logger,
	}
}

func (r *MongoAccountRepository) EnsureAccount(ctx context.Context, userID string, initial decimal.Decimal) (*domain.Account, error) {
	initial128, err := toDecimal128(initial)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "balance", Value: initial128},
		{Key: "createdAt", Value: now},
		{Key: "updatedAt", Value: now},
	}}}

	return r.upsert(ctx, "ensure account", bson.D{{Key: "_id", Value: userID}}, update)
}

// IncrementBalance is a single pipeline upsert: a missing balance is taken as
// initial before the amount is added.
func (r *MongoAccountRepository) IncrementBalance(ctx context.Context, userID string, initial, amount decimal.Decimal) (*domain.Account, error) {
	initial128, err := toDecimal128(initial)
	if err != nil {
		return nil, err
	}
	amount128, err := toDecimal128(amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "balance", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$balance", initial128}}},
			amount128,
		}}}},
		{Key: "createdAt", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$createdAt", now}}}},
		{Key: "updatedAt", Value: now},
	}}}}

	account, err := r.upsert(ctx, "increment balance", bson.D{{Key: "_id", Value: userID}}, update)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Account balance updated", "user_id", userID, "new_balance", account.Balance)
	return account, nil
}

func (r *MongoAccountRepository) DecrementBalanceIfSufficient(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Account, error) {
	amount128, err := toDecimal128(amount)
	if err != nil {
		return nil, err
	}
	negated, err := toDecimal128(amount.Neg())
	if err != nil {
		return nil, err
	}

	filter := bson.D{
		{Key: "_id", Value: userID},
		{Key: "balance", Value: bson.D{{Key: "$gte", Value: amount128}}},
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "balance", Value: negated}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDocument
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		r.logger.Warn("Insufficient funds for debit", "user_id", userID, "amount", amount)
		return nil, errors.ErrInsufficientFunds
	}
	if err != nil {
		return nil, storageError(r.logger, "decrement balance", err)
	}

	account, err := doc.toDomain()
	if err != nil {
		return nil, err
	}

	r.logger.Info("Account balance updated", "user_id", userID, "new_balance", account.Balance)
	return account, nil
}

func (r *MongoAccountRepository) TopBalances(ctx context.Context, limit int) ([]domain.Account, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "balance", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, storageError(r.logger, "top balances", err)
	}
	defer cursor.Close(ctx)

	var docs []accountDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageError(r.logger, "top balances", err)
	}

	accounts := make([]domain.Account, 0, len(docs))
	for i := range docs {
		account, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

func (r *MongoAccountRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return storageError(r.logger, "ping mongodb", err)
	}
	return nil
}

func (r *MongoAccountRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// upsert runs FindOneAndUpdate with upsert and returns the post-image. Two
// concurrent upserts of a new _id can race on the unique index; the losing
// write did not apply, so it is safe to run it once more.
func (r *MongoAccountRepository) upsert(ctx context.Context, operation string, filter, update interface{}) (*domain.Account, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc accountDocument
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		r.logger.Debug("Retrying upsert after duplicate key race", "operation", operation)
		err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, storageError(r.logger, operation, err)
	}
	return doc.toDomain()
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, errors.ErrInvalidAmount.WithDetails(err.Error())
	}
	return v, nil
}
