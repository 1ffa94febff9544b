package service

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"querygate/internal/compiler"
	"querygate/internal/database"
	"querygate/internal/model"
	"querygate/internal/utils"
)

// Executor runs a generated query against an acquired connection. It owns
// no state; the connection's breaker and health accounting are fed through
// Connection.Do.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// Execute dispatches to the relational or document path and clamps the
// result set to maxResults.
func (e *Executor) Execute(ctx context.Context, conn *database.Connection, query *compiler.GeneratedQuery, maxResults int) ([]string, []model.Row, error) {
	if maxResults <= 0 {
		maxResults = 100
	}
	if query.Document != nil {
		return e.executeDocument(ctx, conn, query.Document, maxResults)
	}
	return e.executeSQL(ctx, conn, query.SQL, maxResults)
}

func (e *Executor) executeSQL(ctx context.Context, conn *database.Connection, sqlText string, maxResults int) ([]string, []model.Row, error) {
	var columns []string
	var out []model.Row

	err := conn.Do(func() error {
		rows, err := conn.DB.QueryContext(ctx, sqlText)
		if err != nil {
			return err
		}
		defer rows.Close()

		columns, err = rows.Columns()
		if err != nil {
			return err
		}

		for rows.Next() && len(out) < maxResults {
			values, err := scanRow(rows, len(columns))
			if err != nil {
				return err
			}
			row := make(model.Row, len(columns))
			for i, col := range columns {
				row[col] = normalizeValue(values[i])
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, asExecutionError(err)
	}
	return columns, out, nil
}

func (e *Executor) executeDocument(ctx context.Context, conn *database.Connection, doc *compiler.DocumentQuery, maxResults int) ([]string, []model.Row, error) {
	var raw []bson.M

	err := conn.Do(func() error {
		coll := conn.Mongo.Collection(doc.Collection)

		if len(doc.AggregatePipeline) > 0 {
			cursor, err := coll.Aggregate(ctx, clampPipeline(doc.AggregatePipeline, maxResults))
			if err != nil {
				return err
			}
			defer cursor.Close(ctx)
			return cursor.All(ctx, &raw)
		}

		filter := doc.Filter
		if filter == nil {
			filter = bson.M{}
		}
		opts := options.Find().SetLimit(int64(maxResults))
		if len(doc.Projection) > 0 {
			opts.SetProjection(doc.Projection)
		}
		cursor, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &raw)
	})
	if err != nil {
		return nil, nil, asExecutionError(err)
	}

	if len(raw) > maxResults {
		raw = raw[:maxResults]
	}

	rows := make([]model.Row, 0, len(raw))
	columnSet := make(map[string]struct{})
	for _, docRow := range raw {
		row := make(model.Row, len(docRow))
		for key, val := range docRow {
			columnSet[key] = struct{}{}
			row[key] = normalizeDocumentValue(val)
		}
		rows = append(rows, row)
	}

	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns, rows, nil
}

// clampPipeline bounds an aggregate pipeline's output before it is sent to
// the server, so an unbounded pipeline cannot buffer every document into
// memory. Pipelines that already bound themselves pass through unchanged.
func clampPipeline(pipeline []bson.M, maxResults int) []bson.M {
	if maxResults <= 0 {
		return pipeline
	}
	for _, stage := range pipeline {
		if _, ok := stage["$limit"]; ok {
			return pipeline
		}
		if _, ok := stage["$count"]; ok {
			return pipeline
		}
	}
	clamped := make([]bson.M, len(pipeline), len(pipeline)+1)
	copy(clamped, pipeline)
	return append(clamped, bson.M{"$limit": int64(maxResults)})
}

// scanRow scans one row into a slice of generic values.
func scanRow(rows interface{ Scan(...interface{}) error }, columnCount int) ([]interface{}, error) {
	values := make([]interface{}, columnCount)
	pointers := make([]interface{}, columnCount)
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}
	return values, nil
}

// normalizeValue converts driver-specific scan results into JSON-friendly
// values. Byte slices become strings because every relational driver here
// returns text columns that way.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC()
	default:
		return value
	}
}

func normalizeDocumentValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	default:
		return value
	}
}

// asExecutionError keeps typed failures intact and wraps raw driver errors
// so callers can decide retryability from a stable code.
func asExecutionError(err error) error {
	if _, ok := err.(*utils.AppError); ok {
		return err
	}
	return utils.NewExecutionError(err)
}
