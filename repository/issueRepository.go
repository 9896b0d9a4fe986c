package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"cityfix-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Feed order: paid promotion, then priority, then engagement, then recency.
var feedSort = bson.D{
	{Key: "isBoosted", Value: -1},
	{Key: "priorityRank", Value: -1},
	{Key: "upvotes", Value: -1},
	{Key: "createdAt", Value: -1},
}

type mongoIssueRepository struct {
	client *mongo.Client
	issues *mongo.Collection
	users  *mongo.Collection
}

func NewIssueRepository(db *mongo.Database) IssueRepository {
	return &mongoIssueRepository{
		client: db.Client(),
		issues: db.Collection("issues"),
		users:  db.Collection("users"),
	}
}

func (r *mongoIssueRepository) Insert(ctx context.Context, issue *models.Issue) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	_, err := r.issues.InsertOne(ctx, issue)
	return err
}

// InsertWithinQuota counts and inserts inside one transaction. Touching the
// submitter document makes concurrent submissions by the same user conflict,
// so the driver retries the loser and it recounts.
func (r *mongoIssueRepository) InsertWithinQuota(ctx context.Context, issue *models.Issue, limit int64) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.users.UpdateOne(sc,
			bson.M{"email": issue.SubmittedBy},
			bson.M{"$set": bson.M{"lastIssueAt": time.Now()}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, ErrNotFound
		}

		count, err := r.issues.CountDocuments(sc, bson.M{"submittedBy": issue.SubmittedBy})
		if err != nil {
			return nil, err
		}
		if count >= limit {
			return nil, ErrQuotaExceeded
		}

		_, err = r.issues.InsertOne(sc, issue)
		return nil, err
	})
	return err
}

func (r *mongoIssueRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	var issue models.Issue
	if err := r.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&issue); err != nil {
		return nil, notFound(err)
	}
	return &issue, nil
}

func (r *mongoIssueRepository) List(ctx context.Context, filter IssueFilter) ([]models.Issue, int64, error) {
	filter.Normalize()
	query := buildIssueQuery(filter)

	total, err := r.issues.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(feedSort).
		SetSkip((filter.Page - 1) * filter.Limit).
		SetLimit(filter.Limit)

	issues, err := r.find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

func (r *mongoIssueRepository) FindAll(ctx context.Context, filter IssueFilter) ([]models.Issue, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.find(ctx, buildIssueQuery(filter), findOptions)
}

func (r *mongoIssueRepository) ListRecentResolved(ctx context.Context, limit int64) ([]models.Issue, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)
	return r.find(ctx, bson.M{"status": models.StatusResolved}, findOptions)
}

func (r *mongoIssueRepository) UpdateOwned(ctx context.Context, id primitive.ObjectID, owner string, changes models.IssueChanges) (*models.Issue, error) {
	set := bson.M{"updatedAt": changes.UpdatedAt}
	if changes.Title != nil {
		set["title"] = *changes.Title
	}
	if changes.Category != nil {
		set["category"] = *changes.Category
	}
	if changes.Location != nil {
		set["location"] = *changes.Location
	}
	if changes.Description != nil {
		set["description"] = *changes.Description
	}
	if changes.Images != nil {
		set["images"] = []string(changes.Images)
	}

	return r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "submittedBy": owner},
		bson.M{"$set": set},
	)
}

func (r *mongoIssueRepository) DeleteOwned(ctx context.Context, id primitive.ObjectID, owner string) error {
	res, err := r.issues.DeleteOne(ctx, bson.M{"_id": id, "submittedBy": owner})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoIssueRepository) ToggleUpvote(ctx context.Context, id primitive.ObjectID, voter string) (*models.Issue, bool, error) {
	issue, err := r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "upvotedUsers": voter},
		bson.M{
			"$pull": bson.M{"upvotedUsers": voter},
			"$inc":  bson.M{"upvotes": -1},
		},
	)
	if err == nil {
		return issue, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	issue, err = r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "upvotedUsers": bson.M{"$ne": voter}},
		bson.M{
			"$addToSet": bson.M{"upvotedUsers": voter},
			"$inc":      bson.M{"upvotes": 1},
		},
	)
	if err == nil {
		return issue, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	return nil, false, r.preconditionOrNotFound(ctx, id)
}

func (r *mongoIssueRepository) AssignStaff(ctx context.Context, id primitive.ObjectID, staff models.StaffRef, entry models.TimelineEntry) (*models.Issue, error) {
	issue, err := r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "assignedStaff": nil},
		bson.M{
			"$set":  bson.M{"assignedStaff": staff, "updatedAt": entry.CreatedAt},
			"$push": bson.M{"timeline": entry},
		},
	)
	if errors.Is(err, ErrNotFound) {
		return nil, r.preconditionOrNotFound(ctx, id)
	}
	return issue, err
}

func (r *mongoIssueRepository) ClearStaff(ctx context.Context, id primitive.ObjectID, entry models.TimelineEntry) (*models.Issue, error) {
	issue, err := r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "assignedStaff": bson.M{"$ne": nil}},
		bson.M{
			"$set":  bson.M{"assignedStaff": nil, "updatedAt": entry.CreatedAt},
			"$push": bson.M{"timeline": entry},
		},
	)
	if errors.Is(err, ErrNotFound) {
		return nil, r.preconditionOrNotFound(ctx, id)
	}
	return issue, err
}

func (r *mongoIssueRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, staffEmail string, from, to models.IssueStatus, entry models.TimelineEntry) (*models.Issue, error) {
	issue, err := r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "assignedStaff.email": staffEmail, "status": from},
		bson.M{
			"$set":  bson.M{"status": to, "updatedAt": entry.CreatedAt},
			"$push": bson.M{"timeline": entry},
		},
	)
	if errors.Is(err, ErrNotFound) {
		return nil, r.preconditionOrNotFound(ctx, id)
	}
	return issue, err
}

func (r *mongoIssueRepository) MarkBoosted(ctx context.Context, id primitive.ObjectID, entry models.TimelineEntry) (*models.Issue, error) {
	issue, err := r.findOneAndUpdate(ctx,
		bson.M{"_id": id, "isBoosted": bson.M{"$ne": true}},
		bson.M{
			"$set":  bson.M{"isBoosted": true, "priority": models.PriorityHigh, "priorityRank": models.PriorityHigh.Rank(), "updatedAt": entry.CreatedAt},
			"$push": bson.M{"timeline": entry},
		},
	)
	if errors.Is(err, ErrNotFound) {
		return r.FindByID(ctx, id)
	}
	return issue, err
}

func (r *mongoIssueRepository) find(ctx context.Context, query interface{}, opts *options.FindOptions) ([]models.Issue, error) {
	cursor, err := r.issues.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	issues := []models.Issue{}
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *mongoIssueRepository) findOneAndUpdate(ctx context.Context, filter, update interface{}) (*models.Issue, error) {
	var issue models.Issue
	err := r.issues.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&issue)
	if err != nil {
		return nil, notFound(err)
	}
	return &issue, nil
}

// preconditionOrNotFound tells a missing issue apart from a conditional write
// that did not match.
func (r *mongoIssueRepository) preconditionOrNotFound(ctx context.Context, id primitive.ObjectID) error {
	count, err := r.issues.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrPrecondition
}

func buildIssueQuery(filter IssueFilter) bson.M {
	query := bson.M{}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = []bson.M{
			{"title": pattern},
			{"category": pattern},
			{"location": pattern},
		}
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Category), Options: "i"}
	}
	if filter.SubmittedBy != "" {
		query["submittedBy"] = filter.SubmittedBy
	}
	if filter.AssignedStaffEmail != "" {
		query["assignedStaff.email"] = filter.AssignedStaffEmail
	}
	if filter.Boosted != nil {
		if *filter.Boosted {
			query["isBoosted"] = true
		} else {
			query["isBoosted"] = bson.M{"$ne": true}
		}
	}
	return query
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
