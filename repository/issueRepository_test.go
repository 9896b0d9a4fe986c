package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"cityfix-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const (
	testVoter = "rina@example.com"
	testStaff = "sam@city.gov"
)

func issueDoc(id primitive.ObjectID, extra ...bson.E) bson.D {
	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: "Pothole on Main St"},
		{Key: "submittedBy", Value: testVoter},
		{Key: "status", Value: string(models.StatusPending)},
	}
	return append(doc, extra...)
}

// modified is a findAndModify reply. A nil doc means the filter matched nothing.
func modified(doc interface{}) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc})
}

// counted is the aggregate reply CountDocuments reads.
func counted(n int64) bson.D {
	if n == 0 {
		return mtest.CreateCursorResponse(0, "cityfix.issues", mtest.FirstBatch)
	}
	return mtest.CreateCursorResponse(0, "cityfix.issues", mtest.FirstBatch,
		bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: n}})
}

func nextCommand(mt *mtest.T, name string) bson.Raw {
	mt.Helper()
	evt := mt.GetStartedEvent()
	if evt == nil {
		mt.Fatalf("expected a %s command, got none", name)
	}
	if evt.CommandName != name {
		mt.Fatalf("expected a %s command, got %s", name, evt.CommandName)
	}
	return evt.Command
}

func timelineEntry(status models.IssueStatus, message string) models.TimelineEntry {
	return models.TimelineEntry{
		Status:    status,
		Message:   message,
		UpdatedBy: models.Actor{Name: "Admin", Email: "admin@city.gov", Role: models.RoleAdmin},
		CreatedAt: time.Now().UTC(),
	}
}

func TestMongoToggleUpvote(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("adds a missing vote", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			modified(nil),
			modified(issueDoc(id,
				bson.E{Key: "upvotes", Value: 1},
				bson.E{Key: "upvotedUsers", Value: bson.A{testVoter}},
			)),
		)

		issue, added, err := repo.ToggleUpvote(ctx, id, testVoter)
		if err != nil {
			mt.Fatalf("toggle upvote: %v", err)
		}
		if !added || issue.Upvotes != 1 {
			mt.Fatalf("expected an added vote and 1 upvote, got added=%v upvotes=%d", added, issue.Upvotes)
		}

		removal := nextCommand(mt, "findAndModify")
		if got := removal.Lookup("query", "upvotedUsers").StringValue(); got != testVoter {
			mt.Fatalf("expected removal to match voters containing %s, got %s", testVoter, got)
		}
		if got := removal.Lookup("update", "$pull", "upvotedUsers").StringValue(); got != testVoter {
			mt.Fatalf("expected $pull of %s, got %s", testVoter, got)
		}
		if got := removal.Lookup("update", "$inc", "upvotes").AsInt64(); got != -1 {
			mt.Fatalf("expected removal to $inc upvotes by -1, got %d", got)
		}

		addition := nextCommand(mt, "findAndModify")
		if got := addition.Lookup("query", "upvotedUsers", "$ne").StringValue(); got != testVoter {
			mt.Fatalf("expected addition to match voters without %s, got %s", testVoter, got)
		}
		if got := addition.Lookup("update", "$addToSet", "upvotedUsers").StringValue(); got != testVoter {
			mt.Fatalf("expected $addToSet of %s, got %s", testVoter, got)
		}
		if got := addition.Lookup("update", "$inc", "upvotes").AsInt64(); got != 1 {
			mt.Fatalf("expected addition to $inc upvotes by 1, got %d", got)
		}
	})

	mt.Run("removes an existing vote in one write", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(modified(issueDoc(id, bson.E{Key: "upvotes", Value: 0})))

		issue, added, err := repo.ToggleUpvote(ctx, id, testVoter)
		if err != nil {
			mt.Fatalf("toggle upvote: %v", err)
		}
		if added || issue.Upvotes != 0 {
			mt.Fatalf("expected a removed vote and 0 upvotes, got added=%v upvotes=%d", added, issue.Upvotes)
		}
		nextCommand(mt, "findAndModify")
		if evt := mt.GetStartedEvent(); evt != nil {
			mt.Fatalf("expected no further commands, got %s", evt.CommandName)
		}
	})

	mt.Run("missing issue", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), modified(nil), counted(0))

		_, _, err := repo.ToggleUpvote(ctx, primitive.NewObjectID(), testVoter)
		if !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("issue changed between writes", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), modified(nil), counted(1))

		_, _, err := repo.ToggleUpvote(ctx, primitive.NewObjectID(), testVoter)
		if !errors.Is(err, ErrPrecondition) {
			mt.Fatalf("expected ErrPrecondition, got %v", err)
		}
	})
}

func TestMongoAssignStaff(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	ref := models.StaffRef{ID: primitive.NewObjectID(), Name: "Sam", Email: testStaff}

	mt.Run("unassigned issue", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(modified(issueDoc(id,
			bson.E{Key: "assignedStaff", Value: bson.D{{Key: "id", Value: ref.ID}, {Key: "name", Value: ref.Name}, {Key: "email", Value: ref.Email}}},
		)))

		issue, err := repo.AssignStaff(ctx, id, ref, timelineEntry(models.StatusPending, "Assigned to Sam"))
		if err != nil {
			mt.Fatalf("assign staff: %v", err)
		}
		if issue.AssignedStaff == nil || issue.AssignedStaff.Email != testStaff {
			mt.Fatalf("expected %s assigned, got %+v", testStaff, issue.AssignedStaff)
		}

		cmd := nextCommand(mt, "findAndModify")
		if typ := cmd.Lookup("query", "assignedStaff").Type; typ != bson.TypeNull {
			mt.Fatalf("expected filter on an empty assignee, got %s", typ)
		}
		if got := cmd.Lookup("update", "$set", "assignedStaff", "email").StringValue(); got != testStaff {
			mt.Fatalf("expected $set of assignee %s, got %s", testStaff, got)
		}
		if got := cmd.Lookup("update", "$push", "timeline", "message").StringValue(); got != "Assigned to Sam" {
			mt.Fatalf("expected timeline push, got %q", got)
		}
	})

	mt.Run("already assigned", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), counted(1))

		_, err := repo.AssignStaff(ctx, primitive.NewObjectID(), ref, timelineEntry(models.StatusPending, "Assigned to Sam"))
		if !errors.Is(err, ErrPrecondition) {
			mt.Fatalf("expected ErrPrecondition, got %v", err)
		}
		nextCommand(mt, "findAndModify")
		nextCommand(mt, "aggregate")
	})

	mt.Run("missing issue", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), counted(0))

		_, err := repo.AssignStaff(ctx, primitive.NewObjectID(), ref, timelineEntry(models.StatusPending, "Assigned to Sam"))
		if !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoClearStaff(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("assigned issue", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(modified(issueDoc(id, bson.E{Key: "assignedStaff", Value: nil})))

		issue, err := repo.ClearStaff(ctx, id, timelineEntry(models.StatusPending, "Staff removed"))
		if err != nil {
			mt.Fatalf("clear staff: %v", err)
		}
		if issue.AssignedStaff != nil {
			mt.Fatalf("expected no assignee, got %+v", issue.AssignedStaff)
		}

		cmd := nextCommand(mt, "findAndModify")
		if typ := cmd.Lookup("query", "assignedStaff", "$ne").Type; typ != bson.TypeNull {
			mt.Fatalf("expected filter on a present assignee, got %s", typ)
		}
		if typ := cmd.Lookup("update", "$set", "assignedStaff").Type; typ != bson.TypeNull {
			mt.Fatalf("expected assignee set to null, got %s", typ)
		}
	})

	mt.Run("nobody assigned", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), counted(1))

		_, err := repo.ClearStaff(ctx, primitive.NewObjectID(), timelineEntry(models.StatusPending, "Staff removed"))
		if !errors.Is(err, ErrPrecondition) {
			mt.Fatalf("expected ErrPrecondition, got %v", err)
		}
	})
}

func TestMongoTransitionStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("assignee moves status", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(modified(issueDoc(id, bson.E{Key: "status", Value: string(models.StatusWorking)})))

		issue, err := repo.TransitionStatus(ctx, id, testStaff, models.StatusInProgress, models.StatusWorking,
			timelineEntry(models.StatusWorking, "Crew on site"))
		if err != nil {
			mt.Fatalf("transition status: %v", err)
		}
		if issue.Status != models.StatusWorking {
			mt.Fatalf("expected status %s, got %s", models.StatusWorking, issue.Status)
		}

		cmd := nextCommand(mt, "findAndModify")
		if got := cmd.Lookup("query", "assignedStaff.email").StringValue(); got != testStaff {
			mt.Fatalf("expected filter on assignee %s, got %s", testStaff, got)
		}
		if got := cmd.Lookup("query", "status").StringValue(); got != string(models.StatusInProgress) {
			mt.Fatalf("expected filter on current status %s, got %s", models.StatusInProgress, got)
		}
		if got := cmd.Lookup("update", "$set", "status").StringValue(); got != string(models.StatusWorking) {
			mt.Fatalf("expected $set of status %s, got %s", models.StatusWorking, got)
		}
	})

	mt.Run("stale status or other assignee", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), counted(1))

		_, err := repo.TransitionStatus(ctx, primitive.NewObjectID(), testStaff, models.StatusInProgress, models.StatusWorking,
			timelineEntry(models.StatusWorking, "Crew on site"))
		if !errors.Is(err, ErrPrecondition) {
			mt.Fatalf("expected ErrPrecondition, got %v", err)
		}
	})

	mt.Run("missing issue", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), counted(0))

		_, err := repo.TransitionStatus(ctx, primitive.NewObjectID(), testStaff, models.StatusInProgress, models.StatusWorking,
			timelineEntry(models.StatusWorking, "Crew on site"))
		if !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoMarkBoosted(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("first boost", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(modified(issueDoc(id,
			bson.E{Key: "isBoosted", Value: true},
			bson.E{Key: "priority", Value: string(models.PriorityHigh)},
			bson.E{Key: "priorityRank", Value: 1},
		)))

		issue, err := repo.MarkBoosted(ctx, id, timelineEntry(models.StatusPending, "Issue boosted to high priority"))
		if err != nil {
			mt.Fatalf("mark boosted: %v", err)
		}
		if !issue.IsBoosted || issue.Priority != models.PriorityHigh {
			mt.Fatalf("expected a boosted high priority issue, got boosted=%v priority=%s", issue.IsBoosted, issue.Priority)
		}

		cmd := nextCommand(mt, "findAndModify")
		if !cmd.Lookup("query", "isBoosted", "$ne").Boolean() {
			mt.Fatalf("expected filter on not yet boosted, got %s", cmd.Lookup("query", "isBoosted"))
		}
		if got := cmd.Lookup("update", "$set", "priority").StringValue(); got != string(models.PriorityHigh) {
			mt.Fatalf("expected $set of priority high, got %s", got)
		}
		if got := cmd.Lookup("update", "$set", "priorityRank").AsInt64(); got != int64(models.PriorityHigh.Rank()) {
			mt.Fatalf("expected $set of priorityRank %d, got %d", models.PriorityHigh.Rank(), got)
		}
	})

	mt.Run("already boosted", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			modified(nil),
			mtest.CreateCursorResponse(0, "cityfix.issues", mtest.FirstBatch,
				issueDoc(id, bson.E{Key: "isBoosted", Value: true})),
		)

		issue, err := repo.MarkBoosted(ctx, id, timelineEntry(models.StatusPending, "Issue boosted to high priority"))
		if err != nil {
			mt.Fatalf("mark boosted twice: %v", err)
		}
		if !issue.IsBoosted || issue.ID != id {
			mt.Fatalf("expected the stored boosted issue, got %+v", issue)
		}
		nextCommand(mt, "findAndModify")
		nextCommand(mt, "find")
	})

	mt.Run("missing issue", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(modified(nil), mtest.CreateCursorResponse(0, "cityfix.issues", mtest.FirstBatch))

		_, err := repo.MarkBoosted(ctx, primitive.NewObjectID(), timelineEntry(models.StatusPending, "Issue boosted to high priority"))
		if !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoInsertWithinQuota(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	touched := mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1})

	mt.Run("under the limit", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(
			touched,
			counted(2),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(),
		)

		issue := &models.Issue{Title: "Broken lamp", SubmittedBy: testVoter}
		if err := repo.InsertWithinQuota(ctx, issue, 3); err != nil {
			mt.Fatalf("insert within quota: %v", err)
		}
		if issue.ID.IsZero() {
			mt.Fatalf("expected an assigned id")
		}

		update := nextCommand(mt, "update")
		if !update.Lookup("startTransaction").Boolean() {
			mt.Fatalf("expected the submitter update to open the transaction")
		}
		if got := update.Lookup("updates", "0", "q", "email").StringValue(); got != testVoter {
			mt.Fatalf("expected the submitter document to be touched, got %s", got)
		}
		count := nextCommand(mt, "aggregate")
		if got := count.Lookup("pipeline", "0", "$match", "submittedBy").StringValue(); got != testVoter {
			mt.Fatalf("expected a count of %s issues, got %s", testVoter, got)
		}
		nextCommand(mt, "insert")
		nextCommand(mt, "commitTransaction")
	})

	mt.Run("at the limit", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(touched, counted(3), mtest.CreateSuccessResponse())

		err := repo.InsertWithinQuota(ctx, &models.Issue{Title: "Broken lamp", SubmittedBy: testVoter}, 3)
		if !errors.Is(err, ErrQuotaExceeded) {
			mt.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		nextCommand(mt, "update")
		nextCommand(mt, "aggregate")
		nextCommand(mt, "abortTransaction")
	})

	mt.Run("unknown submitter", func(mt *mtest.T) {
		repo := NewIssueRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(),
		)

		err := repo.InsertWithinQuota(ctx, &models.Issue{Title: "Broken lamp", SubmittedBy: "ghost@example.com"}, 3)
		if !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBackfillPriorityRank(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("ranks issues missing the field", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 4}, bson.E{Key: "nModified", Value: 4}))

		n, err := BackfillPriorityRank(context.Background(), mt.DB)
		if err != nil {
			mt.Fatalf("backfill: %v", err)
		}
		if n != 4 {
			mt.Fatalf("expected 4 issues backfilled, got %d", n)
		}

		cmd := nextCommand(mt, "update")
		if exists := cmd.Lookup("updates", "0", "q", "priorityRank", "$exists").Boolean(); exists {
			mt.Fatalf("expected only issues without priorityRank to be matched")
		}
		if !cmd.Lookup("updates", "0", "multi").Boolean() {
			mt.Fatalf("expected a multi-document update")
		}
		if got := cmd.Lookup("updates", "0", "u", "0", "$set", "priorityRank", "$cond", "1").AsInt64(); got != int64(models.PriorityHigh.Rank()) {
			mt.Fatalf("expected high priority to rank %d, got %d", models.PriorityHigh.Rank(), got)
		}
	})
}
