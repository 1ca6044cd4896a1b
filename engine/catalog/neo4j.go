package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/docuchat/docuchat/engine/domain"
	"github.com/docuchat/docuchat/pkg/repo"
)

// NewNeo4jStore builds a catalog backed by Neo4j, one node label per
// entity type.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Store {
	return &Store{
		Users: &neo4jUsers{repo: repo.NewNeo4jRepo[domain.User, string](
			driver, "User", userToMap, userFromRecord)},
		Documents: &neo4jDocuments{repo: repo.NewNeo4jRepo[domain.Document, string](
			driver, "Document", docToMap, docFromRecord)},
		Sections: &neo4jSections{repo: repo.NewNeo4jRepo[domain.Section, string](
			driver, "Section", sectionToMap, sectionFromRecord)},
	}
}

type neo4jUsers struct {
	repo *repo.Neo4jRepo[domain.User, string]
}

func (s *neo4jUsers) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.repo.Get(ctx, id)
	return u, notFound(err, "user", id)
}

func (s *neo4jUsers) GetByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	users, err := s.repo.Find(ctx, "auth0_id", externalID)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) == 0 {
		return domain.User{}, fmt.Errorf("user %s: %w", externalID, domain.ErrNotFound)
	}
	return users[0], nil
}

func (s *neo4jUsers) Create(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return s.repo.Create(ctx, u)
}

func (s *neo4jUsers) SetLang(ctx context.Context, id, lang string) (domain.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	u.Lang = lang
	return s.repo.Update(ctx, u)
}

type neo4jDocuments struct {
	repo *repo.Neo4jRepo[domain.Document, string]
}

func (s *neo4jDocuments) Get(ctx context.Context, id string) (domain.Document, error) {
	d, err := s.repo.Get(ctx, id)
	return d, notFound(err, "document", id)
}

func (s *neo4jDocuments) Create(ctx context.Context, d domain.Document) (domain.Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return s.repo.Create(ctx, d)
}

func (s *neo4jDocuments) ListByUser(ctx context.Context, userID string) ([]domain.Document, error) {
	docs, err := s.repo.Find(ctx, "user_id", userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs, nil
}

func (s *neo4jDocuments) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

type neo4jSections struct {
	repo *repo.Neo4jRepo[domain.Section, string]
}

func (s *neo4jSections) Get(ctx context.Context, id string) (domain.Section, error) {
	sec, err := s.repo.Get(ctx, id)
	return sec, notFound(err, "section", id)
}

func (s *neo4jSections) CreateBatch(ctx context.Context, sections []domain.Section) ([]domain.Section, error) {
	out := make([]domain.Section, 0, len(sections))
	for _, sec := range sections {
		if sec.ID == "" {
			sec.ID = uuid.NewString()
		}
		created, err := s.repo.Create(ctx, sec)
		if err != nil {
			return out, fmt.Errorf("create section %d of document %s: %w", sec.DocIndex, sec.DocumentID, err)
		}
		out = append(out, created)
	}
	return out, nil
}

func (s *neo4jSections) ListByDocument(ctx context.Context, documentID string) ([]domain.Section, error) {
	sections, err := s.repo.Find(ctx, "document_id", documentID)
	if err != nil {
		return nil, err
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].DocIndex < sections[j].DocIndex })
	return sections, nil
}

func (s *neo4jSections) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	sections, err := s.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(sections))
	for i, sec := range sections {
		ids[i] = sec.ID
	}
	if err := s.repo.DeleteWhere(ctx, "document_id", documentID); err != nil {
		return nil, err
	}
	return ids, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return err
}

func userToMap(u domain.User) map[string]any {
	return map[string]any{
		"id":       u.ID,
		"auth0_id": u.ExternalID,
		"username": u.Username,
		"email":    u.Email,
		"lang":     u.Lang,
	}
}

func userFromRecord(rec *neo4j.Record) (domain.User, error) {
	props, err := nodeProps(rec)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:         stringProp(props, "id"),
		ExternalID: stringProp(props, "auth0_id"),
		Username:   stringProp(props, "username"),
		Email:      stringProp(props, "email"),
		Lang:       stringProp(props, "lang"),
	}, nil
}

func docToMap(d domain.Document) map[string]any {
	return map[string]any{
		"id":         d.ID,
		"user_id":    d.UserID,
		"filename":   d.Filename,
		"text":       d.Text,
		"lang":       d.Lang,
		"file_size":  d.FileSize,
		"created_at": d.CreatedAt,
	}
}

func docFromRecord(rec *neo4j.Record) (domain.Document, error) {
	props, err := nodeProps(rec)
	if err != nil {
		return domain.Document{}, err
	}
	d := domain.Document{
		ID:       stringProp(props, "id"),
		UserID:   stringProp(props, "user_id"),
		Filename: stringProp(props, "filename"),
		Text:     stringProp(props, "text"),
		Lang:     stringProp(props, "lang"),
		FileSize: intProp(props, "file_size"),
	}
	if ts, ok := props["created_at"].(time.Time); ok {
		d.CreatedAt = ts
	}
	return d, nil
}

func sectionToMap(s domain.Section) map[string]any {
	return map[string]any{
		"id":          s.ID,
		"document_id": s.DocumentID,
		"doc_index":   s.DocIndex,
		"content":     s.Content,
	}
}

func sectionFromRecord(rec *neo4j.Record) (domain.Section, error) {
	props, err := nodeProps(rec)
	if err != nil {
		return domain.Section{}, err
	}
	return domain.Section{
		ID:         stringProp(props, "id"),
		DocumentID: stringProp(props, "document_id"),
		DocIndex:   int(intProp(props, "doc_index")),
		Content:    stringProp(props, "content"),
	}, nil
}

func nodeProps(rec *neo4j.Record) (map[string]any, error) {
	if len(rec.Values) == 0 {
		return nil, errors.New("catalog: empty record")
	}
	node, ok := rec.Values[0].(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("catalog: record value is %T, not a node", rec.Values[0])
	}
	return node.Props, nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
