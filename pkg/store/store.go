package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quantumlayerhq/sbom-enrich/pkg/models"
)

// Document is the constraint every stored entity satisfies: a pointer type
// that can report and assign its own document-store key.
type Document interface {
	DocID() string
	SetDocID(string)
}

// Store is a typed CRUD facade over one JSONB-backed collection.
type Store[T Document] struct {
	pool       *Pool
	collection string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(name string) string {
	if !identRe.MatchString(name) {
		panic(fmt.Sprintf("store: invalid collection name %q", name))
	}
	return `"` + name + `"`
}

// NewStore constructs a Store for the named collection, creating its backing
// table if necessary.
func NewStore[T Document](ctx context.Context, pool *Pool, collection string) (*Store[T], error) {
	if err := pool.EnsureCollection(ctx, collection); err != nil {
		return nil, err
	}
	return &Store[T]{pool: pool, collection: collection}, nil
}

// Find returns the document with the given id, or a KindNotFound error.
func (s *Store[T]) Find(ctx context.Context, id string) (T, error) {
	var zero T
	row := s.pool.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, quoteIdent(s.collection)), id)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, models.NewError(models.KindNotFound, "store.Find", s.collection+" "+id, err)
		}
		return zero, models.NewError(models.KindStorage, "store.Find", s.collection, err)
	}
	return decode[T](raw)
}

// List returns every document in the collection.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	rows, err := s.pool.db.Query(ctx, fmt.Sprintf(`SELECT doc FROM %s`, quoteIdent(s.collection)))
	if err != nil {
		return nil, models.NewError(models.KindStorage, "store.List", s.collection, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, models.NewError(models.KindStorage, "store.List", s.collection, err)
		}
		doc, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewError(models.KindStorage, "store.List", s.collection, err)
	}
	return out, nil
}

// Insert assigns a fresh UUID if doc's id is empty and writes it through.
// A client-supplied non-empty id is rejected to keep the service-layer
// contract uniform across every collection.
func (s *Store[T]) Insert(ctx context.Context, doc T) error {
	if doc.DocID() != "" {
		return models.NewError(models.KindValidation, "store.Insert",
			s.collection+": client-generated ids are forbidden", nil)
	}
	doc.SetDocID(uuid.NewString())

	raw, err := json.Marshal(doc)
	if err != nil {
		return models.NewError(models.KindInternal, "store.Insert", "marshal "+s.collection, err)
	}

	_, err = s.pool.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, quoteIdent(s.collection)),
		doc.DocID(), raw)
	if err != nil {
		return models.NewError(models.KindStorage, "store.Insert", s.collection, err)
	}
	return nil
}

// Update overwrites an existing document. Fails if no document with that id exists.
func (s *Store[T]) Update(ctx context.Context, doc T) error {
	if doc.DocID() == "" {
		return models.NewError(models.KindValidation, "store.Update", s.collection+": missing id", nil)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return models.NewError(models.KindInternal, "store.Update", "marshal "+s.collection, err)
	}

	tag, err := s.pool.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = $2, updated_at = now() WHERE id = $1`, quoteIdent(s.collection)),
		doc.DocID(), raw)
	if err != nil {
		return models.NewError(models.KindStorage, "store.Update", s.collection, err)
	}
	if tag.RowsAffected() == 0 {
		return models.NewError(models.KindNotFound, "store.Update", s.collection+" "+doc.DocID(), nil)
	}
	return nil
}

// Delete removes the document with the given id. Fails if nothing was removed.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, quoteIdent(s.collection)), id)
	if err != nil {
		return models.NewError(models.KindStorage, "store.Delete", s.collection, err)
	}
	if tag.RowsAffected() == 0 {
		return models.NewError(models.KindNotFound, "store.Delete", s.collection+" "+id, nil)
	}
	return nil
}

// Query returns every document whose top-level fields match every key-value
// pair given (an exact-match conjunction over the JSONB document).
func (s *Store[T]) Query(ctx context.Context, filter map[string]string) ([]T, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sqlStr := fmt.Sprintf(`SELECT doc FROM %s WHERE doc @> $1::jsonb`, quoteIdent(s.collection))
	containment := make(map[string]string, len(filter))
	for _, k := range keys {
		containment[k] = filter[k]
	}
	raw, err := json.Marshal(containment)
	if err != nil {
		return nil, models.NewError(models.KindInternal, "store.Query", "marshal filter", err)
	}

	rows, err := s.pool.db.Query(ctx, sqlStr, raw)
	if err != nil {
		return nil, models.NewError(models.KindStorage, "store.Query", s.collection, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var docRaw []byte
		if err := rows.Scan(&docRaw); err != nil {
			return nil, models.NewError(models.KindStorage, "store.Query", s.collection, err)
		}
		doc, err := decode[T](docRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// AdHocOp is the closed set of document-store update operators UpdateAdHoc
// supports. These are the only update patterns the enrichment pipeline
// actually needs: appending to or pruning an embedded array.
type AdHocOp string

const (
	OpSet  AdHocOp = "$set"
	OpPush AdHocOp = "$push"
	OpPull AdHocOp = "$pull"
)

// UpdateAdHoc applies op to the document identified by (keyName, key) at the
// given JSON path (dot-separated, e.g. "taskRefs"). expression is the value
// to set, push, or pull.
func (s *Store[T]) UpdateAdHoc(ctx context.Context, keyName, key string, op AdHocOp, path string, expression any) error {
	if keyName == "" {
		keyName = "id"
	}
	exprRaw, err := json.Marshal(expression)
	if err != nil {
		return models.NewError(models.KindInternal, "store.UpdateAdHoc", "marshal expression", err)
	}

	var sqlStr string
	switch op {
	case OpSet:
		sqlStr = fmt.Sprintf(
			`UPDATE %s SET doc = jsonb_set(doc, $2, $3::jsonb, true), updated_at = now() WHERE doc->>$4 = $1`,
			quoteIdent(s.collection))
	case OpPush:
		sqlStr = fmt.Sprintf(
			`UPDATE %s SET doc = jsonb_set(doc, $2, COALESCE(doc #> $2, '[]'::jsonb) || $3::jsonb, true), updated_at = now() WHERE doc->>$4 = $1`,
			quoteIdent(s.collection))
	case OpPull:
		sqlStr = fmt.Sprintf(
			`UPDATE %s SET doc = jsonb_set(doc, $2, (SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb) FROM jsonb_array_elements(COALESCE(doc #> $2, '[]'::jsonb)) elem WHERE elem <> $3::jsonb), true), updated_at = now() WHERE doc->>$4 = $1`,
			quoteIdent(s.collection))
	default:
		return models.NewError(models.KindValidation, "store.UpdateAdHoc", "unsupported operator "+string(op), nil)
	}

	pathArr := pgJSONPath(path)
	tag, err := s.pool.db.Exec(ctx, sqlStr, key, pathArr, exprRaw, keyName)
	if err != nil {
		return models.NewError(models.KindStorage, "store.UpdateAdHoc", s.collection, err)
	}
	if tag.RowsAffected() == 0 {
		return models.NewError(models.KindNotFound, "store.UpdateAdHoc", s.collection+" "+key, nil)
	}
	return nil
}

// DropCollection drops the backing table. Used only by dataset-construction
// tasks that rebuild a collection from scratch.
func (s *Store[T]) DropCollection(ctx context.Context) error {
	_, err := s.pool.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(s.collection)))
	if err != nil {
		return models.NewError(models.KindStorage, "store.DropCollection", s.collection, err)
	}
	return s.pool.EnsureCollection(ctx, s.collection)
}

func decode[T Document](raw []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		var zero T
		return zero, models.NewError(models.KindInternal, "store.decode", "unmarshal document", err)
	}
	return doc, nil
}

func pgJSONPath(path string) []string {
	if path == "" {
		return nil
	}
	return regexp.MustCompile(`\.`).Split(path, -1)
}

// WithTx runs fn inside a database transaction.
func (s *Store[T]) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return s.pool.WithTx(ctx, fn)
}
