// Package semantic is the sole owner of all Qdrant operations. Each user
// has one collection, created at user-creation time and addressed by the
// collection id derived from the user's external identity.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/docuchat/docuchat/engine/domain"
)

// Payload keys stored with every point.
const (
	keySectionID = "section_id"
	keyDocID     = "doc_id"
	keyFile      = "file"
	keyLang      = "lang"
	keyDocIndex  = "doc_index"
)

// Store talks to Qdrant over gRPC.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	dims        int
}

// New connects to Qdrant at the given gRPC address. dims is the embedding
// dimensionality every collection is created with; it must match the
// deployed embedding model.
func New(addr string, dims int) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		dims:        dims,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. Safe to call
// for existing users, e.g. during index rebuilds.
func (s *Store) EnsureCollection(ctx context.Context, collection string) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %v: %w", err, domain.ErrIndex)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %v: %w", collection, err, domain.ErrIndex)
	}
	return nil
}

// DeleteCollection removes a user's collection entirely.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %v: %w", collection, err, domain.ErrIndex)
	}
	return nil
}

// Upsert writes section vectors into a user's collection, overwriting
// entries that share a section id.
func (s *Store) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.SectionID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: recordPayload(r),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points into %s: %v: %w", len(records), collection, err, domain.ErrIndex)
	}
	return nil
}

// Search returns up to limit hits ranked by descending similarity. An empty
// collection yields an empty slice, not an error. Tie order is whatever the
// index returns; no secondary sort is imposed.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %v: %w", collection, err, domain.ErrIndex)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = hitFromPoint(r)
	}
	return hits, nil
}

// DeleteSections removes the vector entries for the given section ids.
// Missing ids are a no-op.
func (s *Store) DeleteSections(ctx context.Context, collection string, sectionIDs []string) error {
	if len(sectionIDs) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(sectionIDs))
	for i, id := range sectionIDs {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %d sections from %s: %v: %w", len(sectionIDs), collection, err, domain.ErrIndex)
	}
	return nil
}

// DeleteByDocument removes every vector entry of one document via a payload
// filter. Used when a document is deleted or re-ingested.
func (s *Store) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch(keyDocID, documentID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete doc %s from %s: %v: %w", documentID, collection, err, domain.ErrIndex)
	}
	return nil
}

func recordPayload(r Record) map[string]*pb.Value {
	return map[string]*pb.Value{
		keySectionID: {Kind: &pb.Value_StringValue{StringValue: r.SectionID}},
		keyDocID:     {Kind: &pb.Value_StringValue{StringValue: r.DocumentID}},
		keyFile:      {Kind: &pb.Value_StringValue{StringValue: r.File}},
		keyLang:      {Kind: &pb.Value_StringValue{StringValue: r.Lang}},
		keyDocIndex:  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.DocIndex)}},
	}
}

func hitFromPoint(p *pb.ScoredPoint) Hit {
	h := Hit{Score: p.GetScore()}
	for k, v := range p.GetPayload() {
		switch k {
		case keySectionID:
			h.SectionID = v.GetStringValue()
		case keyDocID:
			h.DocumentID = v.GetStringValue()
		case keyFile:
			h.File = v.GetStringValue()
		case keyLang:
			h.Lang = v.GetStringValue()
		case keyDocIndex:
			h.DocIndex = int(v.GetIntegerValue())
		}
	}
	return h
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
