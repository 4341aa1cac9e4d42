package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/schema"
)

// DocumentOptions configures OpenDocument.
type DocumentOptions struct {
	URI         string
	Database    string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
	BatchSize   int
}

// Document manages targets as MongoDB collections. Documents are written
// as ordered bson.D, but since field order is not guaranteed on read the
// column order is always taken from metadata.
type Document struct {
	client    *mongo.Client
	db        *mongo.Database
	batchSize int
}

// metadataDoc is the shape of a table_metadata document.
type metadataDoc struct {
	TableName    string    `bson:"table_name"`
	ColumnOrder  string    `bson:"column_order"`
	ImageColumns string    `bson:"image_columns"`
	ColumnTypes  string    `bson:"column_types,omitempty"`
	CreateTime   time.Time `bson:"create_time"`
}

// OpenDocument connects and pings the primary.
func OpenDocument(ctx context.Context, opts DocumentOptions) (*Document, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	clientOpts.SetMinPoolSize(opts.MinPoolSize)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return NewDocument(client, opts.Database, opts.BatchSize), nil
}

// NewDocument wraps a connected client.
func NewDocument(client *mongo.Client, database string, batchSize int) *Document {
	if batchSize <= 0 {
		batchSize = DefaultDocumentBatchSize
	}
	return &Document{client: client, db: client.Database(database), batchSize: batchSize}
}

// Backend implements Manager.
func (d *Document) Backend() Backend { return BackendDocument }

// BatchSize implements Manager.
func (d *Document) BatchSize() int { return d.batchSize }

// CreateOrReplace implements Manager.
func (d *Document) CreateOrReplace(ctx context.Context, s schema.TableSchema) error {
	s.SurrogateKey = ""

	if err := d.db.Collection(s.Target).Drop(ctx); err != nil {
		return apperrors.CreateFailed(s.Target, fmt.Errorf("drop: %w", err))
	}
	if err := d.deleteMetadata(ctx, s.Target); err != nil {
		return apperrors.CreateFailed(s.Target, err)
	}
	if err := d.db.CreateCollection(ctx, s.Target); err != nil {
		return apperrors.CreateFailed(s.Target, fmt.Errorf("create: %w", err))
	}

	_, err := d.db.Collection(MetadataTable).UpdateOne(ctx,
		bson.M{"table_name": s.Target},
		bson.M{"$set": metadataDoc{
			TableName:    s.Target,
			ColumnOrder:  schema.JoinOrder(s.Order()),
			ImageColumns: schema.JoinOrder(s.ImageColumns()),
			ColumnTypes:  schema.JoinTypes(s.Columns),
			CreateTime:   time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return apperrors.CreateFailed(s.Target, fmt.Errorf("record column order: %w", err))
	}
	return nil
}

func (d *Document) deleteMetadata(ctx context.Context, target string) error {
	if _, err := d.db.Collection(MetadataTable).DeleteOne(ctx, bson.M{"table_name": target}); err != nil {
		return fmt.Errorf("drop metadata of %s: %w", target, err)
	}
	return nil
}

func (d *Document) readMetadata(ctx context.Context, target string) (metadataDoc, error) {
	var meta metadataDoc
	err := d.db.Collection(MetadataTable).FindOne(ctx, bson.M{"table_name": target}).Decode(&meta)
	return meta, err
}

func (d *Document) exists(ctx context.Context, target string) (bool, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.M{"name": target})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// GetColumnOrder implements Manager. Without metadata the keys of the
// first document are returned, which is best effort only.
func (d *Document) GetColumnOrder(ctx context.Context, target string) ([]string, error) {
	if err := ValidTarget(target); err != nil {
		return nil, err
	}

	meta, err := d.readMetadata(ctx, target)
	if err == nil && meta.ColumnOrder != "" {
		return schema.SplitOrder(meta.ColumnOrder), nil
	}

	ok, err := d.exists(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if !ok {
		return nil, apperrors.TargetNotFound(target)
	}

	var first bson.D
	err = d.db.Collection(target).FindOne(ctx, bson.M{}).Decode(&first)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", target, err)
	}

	var names []string
	for _, e := range first {
		if e.Key != "_id" {
			names = append(names, e.Key)
		}
	}
	return names, nil
}

// ImageColumns implements Manager.
func (d *Document) ImageColumns(ctx context.Context, target string) ([]string, error) {
	if err := ValidTarget(target); err != nil {
		return nil, err
	}
	meta, err := d.readMetadata(ctx, target)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return schema.SplitOrder(meta.ImageColumns), nil
}

// ListTargets implements Manager.
func (d *Document) ListTargets(ctx context.Context) ([]string, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if !isInternal(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

// InsertBatch implements Manager.
func (d *Document) InsertBatch(ctx context.Context, s schema.TableSchema, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	docs := make([]any, len(rows))
	for i, row := range rows {
		doc := make(bson.D, 0, len(s.Columns)+1)
		doc = append(doc, bson.E{Key: "_id", Value: primitive.NewObjectID()})
		for j, c := range s.Columns {
			var v any
			if j < len(row) {
				v = toBSON(c.Type, row[j])
			}
			doc = append(doc, bson.E{Key: c.Name, Value: v})
		}
		docs[i] = doc
	}

	if _, err := d.db.Collection(s.Target).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert %d documents: %w", len(docs), err)
	}
	return nil
}

// toBSON maps a pipeline or update value onto its stored representation.
// Numeric text and JSON numbers are coerced to the column's type; values
// that do not parse are stored as given.
func toBSON(t schema.TypeTag, v any) any {
	switch val := v.(type) {
	case []byte:
		return primitive.Binary{Subtype: 0x00, Data: val}
	case string:
		switch t {
		case schema.Decimal:
			if dec, err := primitive.ParseDecimal128(strings.TrimSpace(val)); err == nil {
				return dec
			}
		case schema.Integer:
			if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				return n
			}
		}
		return val
	case float64:
		switch t {
		case schema.Decimal:
			if dec, err := primitive.ParseDecimal128(strconv.FormatFloat(val, 'f', -1, 64)); err == nil {
				return dec
			}
		case schema.Integer:
			if val == math.Trunc(val) && math.Abs(val) < 1<<63 {
				return int64(val)
			}
		}
	}
	return v
}

// fromBSON maps stored values back to plain Go values.
func fromBSON(v any) any {
	switch val := v.(type) {
	case primitive.Binary:
		return val.Data
	case primitive.Decimal128:
		return val.String()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case int32:
		return int64(val)
	}
	return v
}

func docToRow(doc bson.D) Row {
	row := make(Row, len(doc))
	for _, e := range doc {
		key := e.Key
		if key == "_id" {
			key = schema.DocumentIDKey
		}
		row[key] = fromBSON(e.Value)
	}
	return row
}

// ReadRows implements Manager. Documents come back in insertion order;
// _id is surfaced as "id".
func (d *Document) ReadRows(ctx context.Context, target string, offset, limit int) ([]Row, error) {
	if err := ValidTarget(target); err != nil {
		return nil, err
	}
	if ok, err := d.exists(ctx, target); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperrors.TargetNotFound(target)
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := d.db.Collection(target).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Row
	for cur.Next(ctx) {
		var doc bson.D
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, docToRow(doc))
	}
	return out, cur.Err()
}

// Count implements Manager.
func (d *Document) Count(ctx context.Context, target string) (int64, error) {
	if err := ValidTarget(target); err != nil {
		return 0, err
	}
	if ok, err := d.exists(ctx, target); err != nil {
		return 0, err
	} else if !ok {
		return 0, apperrors.TargetNotFound(target)
	}
	return d.db.Collection(target).CountDocuments(ctx, bson.M{})
}

func objectID(target, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, rowNotFound(target, id)
	}
	return oid, nil
}

// UpdateRow implements Manager. id is the hex form of the document id.
func (d *Document) UpdateRow(ctx context.Context, target, id string, values map[string]any) error {
	order, err := d.GetColumnOrder(ctx, target)
	if err != nil {
		return err
	}
	oid, err := objectID(target, id)
	if err != nil {
		return err
	}

	// Targets imported before types were recorded fall back to ShortText.
	var types map[string]schema.TypeTag
	if meta, err := d.readMetadata(ctx, target); err == nil {
		types = schema.SplitTypes(meta.ColumnTypes)
	}

	set := bson.M{}
	for c, v := range values {
		if c == schema.DocumentIDKey || !contains(order, c) {
			return columnNotFound(target, c)
		}
		set[c] = toBSON(types[c], v)
	}
	if len(set) == 0 {
		return nil
	}

	res, err := d.db.Collection(target).UpdateByID(ctx, oid, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s row %s: %w", target, id, err)
	}
	if res.MatchedCount == 0 {
		return rowNotFound(target, id)
	}
	return nil
}

// DeleteRow implements Manager.
func (d *Document) DeleteRow(ctx context.Context, target, id string) error {
	if err := ValidTarget(target); err != nil {
		return err
	}
	oid, err := objectID(target, id)
	if err != nil {
		return err
	}
	res, err := d.db.Collection(target).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete %s row %s: %w", target, id, err)
	}
	if res.DeletedCount == 0 {
		return rowNotFound(target, id)
	}
	return nil
}

// Drop implements Manager.
func (d *Document) Drop(ctx context.Context, target string) error {
	if err := ValidTarget(target); err != nil {
		return err
	}
	if err := d.db.Collection(target).Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", target, err)
	}
	return d.deleteMetadata(ctx, target)
}

// Close implements Manager.
func (d *Document) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
