package repository

import (
	"context"

	"cityfix-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPaymentRepository struct {
	payments *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) PaymentRepository {
	return &mongoPaymentRepository{payments: db.Collection("payments")}
}

func (r *mongoPaymentRepository) Insert(ctx context.Context, payment *models.Payment) error {
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	_, err := r.payments.InsertOne(ctx, payment)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoPaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.payments.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&payment); err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

func (r *mongoPaymentRepository) ListByEmail(ctx context.Context, email string) ([]models.Payment, error) {
	return r.find(ctx, bson.M{"email": email})
}

func (r *mongoPaymentRepository) ListAll(ctx context.Context) ([]models.Payment, error) {
	return r.find(ctx, bson.M{})
}

func (r *mongoPaymentRepository) find(ctx context.Context, filter bson.M) ([]models.Payment, error) {
	cursor, err := r.payments.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "paidAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	payments := []models.Payment{}
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}
