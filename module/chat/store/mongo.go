package store

import (
	"context"
	"errors"
	"time"

	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DBProvider hands out the current database handle; service/mgo.Manager implements it.
type DBProvider interface {
	DB() (*mongo.Database, error)
}

type staticDB struct{ db *mongo.Database }

func (s staticDB) DB() (*mongo.Database, error) { return s.db, nil }

// StaticDB wraps a fixed handle.
func StaticDB(db *mongo.Database) DBProvider { return staticDB{db: db} }

type Mongo struct {
	p DBProvider
}

func NewMongo(p DBProvider) *Mongo {
	return &Mongo{p: p}
}

func (s *Mongo) coll(name string) (*mongo.Collection, error) {
	db, err := s.p.DB()
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

func storageErr(err error, kv ...any) error {
	if err == nil {
		return nil
	}
	if errs.Code(err) != 0 {
		return err
	}
	return errs.ErrStorage.Wrap(err, kv...)
}

// EnsureIndexes creates the pairKey unique index and the query indexes.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	convs, err := s.coll(model.ConversationCollection)
	if err != nil {
		return err
	}
	_, err = convs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: model.ConversationFieldPairKey, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_pair"),
		},
		{
			Keys: bson.D{{Key: model.ConversationFieldParticipants, Value: 1}, {Key: model.FieldUpdatedAt, Value: -1}},
		},
	})
	if err != nil {
		return storageErr(err, "collection", model.ConversationCollection)
	}
	msgs, err := s.coll(model.MessageCollection)
	if err != nil {
		return err
	}
	_, err = msgs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: model.MessageFieldConversation, Value: 1}, {Key: model.FieldCreatedAt, Value: 1}, {Key: model.FieldID, Value: 1}},
	})
	if err != nil {
		return storageErr(err, "collection", model.MessageCollection)
	}
	stories, err := s.coll(model.StoryCollection)
	if err != nil {
		return err
	}
	_, err = stories.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: model.StoryFieldExpiresAt, Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires"),
		},
		{
			Keys: bson.D{{Key: model.StoryFieldUser, Value: 1}, {Key: model.StoryFieldExpiresAt, Value: 1}},
		},
	})
	return storageErr(err, "collection", model.StoryCollection)
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter any, what string, kv ...any) (*T, error) {
	var out T
	err := c.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WrapMsg(what+" not found", kv...)
	}
	if err != nil {
		return nil, storageErr(err, kv...)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, opts *options.FindOptions) ([]*T, error) {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr(err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []*T
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, storageErr(err)
		}
		out = append(out, &v)
	}
	return out, storageErr(cur.Err())
}

func (s *Mongo) GetUser(ctx context.Context, id string) (*model.User, error) {
	c, err := s.coll(model.UserCollection)
	if err != nil {
		return nil, err
	}
	return findOne[model.User](ctx, c, bson.M{model.FieldID: id}, "user", "userId", id)
}

func (s *Mongo) GetUsers(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	c, err := s.coll(model.UserCollection)
	if err != nil {
		return nil, err
	}
	list, err := findAll[model.User](ctx, c, bson.M{model.FieldID: bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"username": 1, "avatar": 1, "email": 1, "status": 1}))
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Mongo) SetUserStatus(ctx context.Context, id, status string) error {
	c, err := s.coll(model.UserCollection)
	if err != nil {
		return err
	}
	res, err := c.UpdateOne(ctx, bson.M{model.FieldID: id},
		bson.M{"$set": bson.M{model.UserFieldStatus: status, model.FieldUpdatedAt: Now()}})
	if err != nil {
		return storageErr(err, "userId", id)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("user not found", "userId", id)
	}
	return nil
}

func (s *Mongo) ListUsersExcept(ctx context.Context, excludeID string) ([]*model.User, error) {
	c, err := s.coll(model.UserCollection)
	if err != nil {
		return nil, err
	}
	return findAll[model.User](ctx, c, bson.M{model.FieldID: bson.M{"$ne": excludeID}},
		options.Find().
			SetProjection(bson.M{"password": 0}).
			SetSort(bson.D{{Key: "username", Value: 1}, {Key: model.FieldID, Value: 1}}))
}

func (s *Mongo) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := s.coll(model.ConversationCollection)
	if err != nil {
		return nil, err
	}
	return findOne[model.Conversation](ctx, c, bson.M{model.FieldID: id}, "conversation", "conversationId", id)
}

func (s *Mongo) FindOrCreateConversation(ctx context.Context, a, b string) (*model.Conversation, bool, error) {
	c, err := s.coll(model.ConversationCollection)
	if err != nil {
		return nil, false, err
	}
	key := model.PairKey(a, b)
	byPair := bson.M{model.ConversationFieldPairKey: key}

	conv, err := findOne[model.Conversation](ctx, c, byPair, "conversation", "pairKey", key)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, false, err
	}

	now := Now()
	conv = &model.Conversation{
		ID:           NewID(),
		Participants: []string{a, b},
		PairKey:      key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err = c.InsertOne(ctx, conv); err != nil {
		if !mongoutil.IsDuplicateKey(err) {
			return nil, false, storageErr(err, "pairKey", key)
		}
		// lost the race on the pair index: read the winner
		conv, err = findOne[model.Conversation](ctx, c, byPair, "conversation", "pairKey", key)
		if err != nil {
			return nil, false, err
		}
		return conv, false, nil
	}
	return conv, true, nil
}

func (s *Mongo) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	c, err := s.coll(model.ConversationCollection)
	if err != nil {
		return nil, err
	}
	return findAll[model.Conversation](ctx, c, bson.M{model.ConversationFieldParticipants: userID},
		options.Find().SetSort(bson.D{{Key: model.FieldUpdatedAt, Value: -1}, {Key: model.FieldID, Value: -1}}))
}

func (s *Mongo) AdvanceLastMessage(ctx context.Context, convID string, msg *model.Message) (bool, error) {
	c, err := s.coll(model.ConversationCollection)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		model.FieldID: convID,
		"$or": bson.A{
			bson.M{model.ConversationFieldLastMessageAt: nil},
			bson.M{model.ConversationFieldLastMessageAt: bson.M{"$lt": msg.CreatedAt}},
			bson.M{
				model.ConversationFieldLastMessageAt: msg.CreatedAt,
				model.ConversationFieldLastMessage:   bson.M{"$lt": msg.ID},
			},
		},
	}
	res, err := c.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		model.ConversationFieldLastMessage:   msg.ID,
		model.ConversationFieldLastMessageAt: msg.CreatedAt,
		model.FieldUpdatedAt:                 Now(),
	}})
	if err != nil {
		return false, storageErr(err, "conversationId", convID)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Mongo) SetLastMessageIf(ctx context.Context, convID, expected string, latest *model.Message) (bool, error) {
	c, err := s.coll(model.ConversationCollection)
	if err != nil {
		return false, err
	}
	filter := bson.M{model.FieldID: convID, model.ConversationFieldLastMessage: expected}
	var update bson.M
	if latest == nil {
		update = bson.M{"$unset": bson.M{model.ConversationFieldLastMessage: "", model.ConversationFieldLastMessageAt: ""}}
	} else {
		update = bson.M{"$set": bson.M{
			model.ConversationFieldLastMessage:   latest.ID,
			model.ConversationFieldLastMessageAt: latest.CreatedAt,
		}}
	}
	res, err := c.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, storageErr(err, "conversationId", convID)
	}
	return res.MatchedCount > 0, nil
}

func (s *Mongo) TouchConversation(ctx context.Context, convID string, at time.Time) error {
	c, err := s.coll(model.ConversationCollection)
	if err != nil {
		return err
	}
	_, err = c.UpdateOne(ctx, bson.M{model.FieldID: convID}, bson.M{"$set": bson.M{model.FieldUpdatedAt: at}})
	return storageErr(err, "conversationId", convID)
}

func (s *Mongo) CreateMessage(ctx context.Context, msg *model.Message) error {
	c, err := s.coll(model.MessageCollection)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = Now()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	if msg.Attachments == nil {
		msg.Attachments = []model.Attachment{}
	}
	if _, err = c.InsertOne(ctx, msg); err != nil {
		if mongoutil.IsDuplicateKey(err) {
			return errs.ErrRecordIsExist.Wrap(err, "messageId", msg.ID)
		}
		return storageErr(err, "messageId", msg.ID)
	}
	return nil
}

func (s *Mongo) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	c, err := s.coll(model.MessageCollection)
	if err != nil {
		return nil, err
	}
	return findOne[model.Message](ctx, c, bson.M{model.FieldID: id}, "message", "messageId", id)
}

func (s *Mongo) UpdateMessageContent(ctx context.Context, id, content string, at time.Time) (*model.Message, error) {
	c, err := s.coll(model.MessageCollection)
	if err != nil {
		return nil, err
	}
	var out model.Message
	err = c.FindOneAndUpdate(ctx, bson.M{model.FieldID: id},
		bson.M{"$set": bson.M{model.MessageFieldContent: content, model.FieldUpdatedAt: at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound.WrapMsg("message not found", "messageId", id)
	}
	if err != nil {
		return nil, storageErr(err, "messageId", id)
	}
	return &out, nil
}

func (s *Mongo) DeleteMessage(ctx context.Context, id string) (bool, error) {
	c, err := s.coll(model.MessageCollection)
	if err != nil {
		return false, err
	}
	res, err := c.DeleteOne(ctx, bson.M{model.FieldID: id})
	if err != nil {
		return false, storageErr(err, "messageId", id)
	}
	return res.DeletedCount > 0, nil
}

var byCreation = bson.D{{Key: model.FieldCreatedAt, Value: 1}, {Key: model.FieldID, Value: 1}}

func (s *Mongo) LatestMessage(ctx context.Context, convID string) (*model.Message, error) {
	c, err := s.coll(model.MessageCollection)
	if err != nil {
		return nil, err
	}
	list, err := findAll[model.Message](ctx, c, bson.M{model.MessageFieldConversation: convID},
		options.Find().SetSort(bson.D{{Key: model.FieldCreatedAt, Value: -1}, {Key: model.FieldID, Value: -1}}).SetLimit(1))
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (s *Mongo) ListMessages(ctx context.Context, convID string) ([]*model.Message, error) {
	c, err := s.coll(model.MessageCollection)
	if err != nil {
		return nil, err
	}
	return findAll[model.Message](ctx, c, bson.M{model.MessageFieldConversation: convID}, options.Find().SetSort(byCreation))
}

func (s *Mongo) MarkSeen(ctx context.Context, convID, readerID string) ([]string, error) {
	c, err := s.coll(model.MessageCollection)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		model.MessageFieldConversation: convID,
		model.MessageFieldSender:       bson.M{"$ne": readerID},
		model.MessageFieldSeen:         false,
	}
	unseen, err := findAll[model.Message](ctx, c, filter,
		options.Find().SetSort(byCreation).SetProjection(bson.M{model.FieldID: 1}))
	if err != nil || len(unseen) == 0 {
		return nil, err
	}
	ids := make([]string, len(unseen))
	for i, m := range unseen {
		ids[i] = m.ID
	}
	_, err = c.UpdateMany(ctx,
		bson.M{model.FieldID: bson.M{"$in": ids}, model.MessageFieldSeen: false},
		bson.M{"$set": bson.M{model.MessageFieldSeen: true}})
	if err != nil {
		return nil, storageErr(err, "conversationId", convID)
	}
	return ids, nil
}

func (s *Mongo) CreateStory(ctx context.Context, st *model.Story) error {
	c, err := s.coll(model.StoryCollection)
	if err != nil {
		return err
	}
	if st.ID == "" {
		st.ID = NewID()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = Now()
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = st.CreatedAt
	}
	if st.Viewers == nil {
		st.Viewers = []model.StoryViewer{}
	}
	if _, err = c.InsertOne(ctx, st); err != nil {
		if mongoutil.IsDuplicateKey(err) {
			return errs.ErrRecordIsExist.Wrap(err, "storyId", st.ID)
		}
		return storageErr(err, "storyId", st.ID)
	}
	return nil
}

func (s *Mongo) ListActiveStories(ctx context.Context, userIDs []string, now time.Time) ([]*model.Story, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	c, err := s.coll(model.StoryCollection)
	if err != nil {
		return nil, err
	}
	return findAll[model.Story](ctx, c, bson.M{
		model.StoryFieldUser:      bson.M{"$in": userIDs},
		model.StoryFieldExpiresAt: bson.M{"$gt": now},
	}, options.Find().SetSort(byCreation))
}

var _ Store = (*Mongo)(nil)
