package repository

import (
	"context"

	"cityfix-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUserRepository struct {
	users *mongo.Collection
}

func NewUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{users: db.Collection("users")}
}

func (r *mongoUserRepository) Insert(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	_, err := r.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoUserRepository) List(ctx context.Context, role models.Role) ([]models.User, error) {
	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}

	cursor, err := r.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *mongoUserRepository) UpdateProfile(ctx context.Context, email string, changes models.ProfileChanges) (*models.User, error) {
	return r.findOneAndUpdate(ctx, bson.M{"email": email}, bson.M{"$set": profileSet(changes)})
}

func (r *mongoUserRepository) UpdateStaff(ctx context.Context, id primitive.ObjectID, changes models.ProfileChanges) (*models.User, error) {
	return r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "role": models.RoleStaff},
		bson.M{"$set": profileSet(changes)},
	)
}

func (r *mongoUserRepository) DeleteStaff(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := r.users.FindOneAndDelete(ctx, bson.M{"_id": id, "role": models.RoleStaff}).Decode(&user)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ToggleBlocked negates isBlocked server-side with an update pipeline, so two
// concurrent toggles never collapse into one.
func (r *mongoUserRepository) ToggleBlocked(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"isBlocked": bson.M{"$not": bson.A{bson.M{"$ifNull": bson.A{"$isBlocked", false}}}},
			"updatedAt": "$$NOW",
		}}},
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, pipeline)
}

func (r *mongoUserRepository) SetPremium(ctx context.Context, email string) error {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"isPremium": true}, "$currentDate": bson.M{"updatedAt": true}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.users.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *mongoUserRepository) findOneAndUpdate(ctx context.Context, filter, update interface{}) (*models.User, error) {
	var user models.User
	err := r.users.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func profileSet(changes models.ProfileChanges) bson.M {
	set := bson.M{"updatedAt": changes.UpdatedAt}
	if changes.Name != nil {
		set["name"] = *changes.Name
	}
	if changes.Phone != nil {
		set["phone"] = *changes.Phone
	}
	if changes.PhotoURL != nil {
		set["photoURL"] = *changes.PhotoURL
	}
	return set
}
