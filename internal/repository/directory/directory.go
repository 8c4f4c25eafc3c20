// Package directory stores the public identity records the station serves
// and the client caches: metas, documents and group member lists.
package directory

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
)

type (
	metaRecord struct {
		DID       string    `bson:"did"`
		Meta      string    `bson:"meta"`
		UpdatedAt time.Time `bson:"updated_at"`
	}

	documentRecord struct {
		DID       string    `bson:"did"`
		Type      string    `bson:"type"`
		Document  string    `bson:"document"`
		UpdatedAt time.Time `bson:"updated_at"`
	}

	membersRecord struct {
		Group     string    `bson:"group"`
		Members   []string  `bson:"members"`
		UpdatedAt time.Time `bson:"updated_at"`
	}

	DirectoryRepo struct {
		metas     *mongo.Collection
		documents *mongo.Collection
		members   *mongo.Collection
	}
)

func NewDirectoryRepo(db *mongo.Database) *DirectoryRepo {
	return &DirectoryRepo{
		metas:     db.Collection("metas"),
		documents: db.Collection("documents"),
		members:   db.Collection("members"),
	}
}

func upsert() *options.ReplaceOptions {
	return options.Replace().SetUpsert(true)
}

func (r *DirectoryRepo) LoadMeta(ctx context.Context, id *identity.ID) (*meta.Meta, error) {
	var rec metaRecord
	err := r.metas.FindOne(ctx, bson.M{"did": id.WithoutTerminal().String()}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta.Parse([]byte(rec.Meta))
}

// SaveMeta keeps the first meta stored for an id; metas never change.
func (r *DirectoryRepo) SaveMeta(ctx context.Context, id *identity.ID, m *meta.Meta) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	did := id.WithoutTerminal().String()
	_, err = r.metas.UpdateOne(ctx,
		bson.M{"did": did},
		bson.M{"$setOnInsert": metaRecord{DID: did, Meta: string(data), UpdatedAt: time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *DirectoryRepo) LoadDocument(ctx context.Context, id *identity.ID) (*document.Document, error) {
	var rec documentRecord
	err := r.documents.FindOne(ctx, bson.M{"did": id.WithoutTerminal().String()}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return document.Parse([]byte(rec.Document))
}

func (r *DirectoryRepo) SaveDocument(ctx context.Context, doc *document.Document) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return err
	}
	did := doc.ID().WithoutTerminal().String()
	_, err = r.documents.ReplaceOne(ctx,
		bson.M{"did": did},
		documentRecord{DID: did, Type: doc.Type(), Document: string(data), UpdatedAt: time.Now()},
		upsert(),
	)
	return err
}

func (r *DirectoryRepo) LoadMembers(ctx context.Context, group *identity.ID) ([]*identity.ID, error) {
	var rec membersRecord
	err := r.members.FindOne(ctx, bson.M{"group": group.String()}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity.ParseAll(rec.Members), nil
}

func (r *DirectoryRepo) SaveMembers(ctx context.Context, group *identity.ID, members []*identity.ID) error {
	_, err := r.members.ReplaceOne(ctx,
		bson.M{"group": group.String()},
		membersRecord{Group: group.String(), Members: identity.Strings(members), UpdatedAt: time.Now()},
		upsert(),
	)
	return err
}
