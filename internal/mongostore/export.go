package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var exportColumns = map[string][]string{
	"slots":        {"id", "kind", "parent_id", "date", "time_start", "time_end", "is_booked", "created_at", "updated_at"},
	"appointments": {"id", "user_id", "user_email", "user_name", "slot_id", "title", "description", "status", "is_deleted", "created_at", "updated_at"},
	"users":        {"id", "email", "name", "role", "created_at", "updated_at"},
}

// TableNames returns the collections to export, in the same order as the SQLite backend.
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	return []string{"slots", "appointments", "users"}, nil
}

// TableData returns every document of a collection flattened to columns.
func (s *Store) TableData(ctx context.Context, name string) ([]map[string]interface{}, []string, error) {
	columns, ok := exportColumns[name]
	if !ok {
		return nil, nil, fmt.Errorf("invalid table name: %s", name)
	}

	cursor, err := s.db.Collection(name).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, nil, fmt.Errorf("export %s: %w", name, err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", name, err)
	}

	rows := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		row := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			key := col
			if col == "id" {
				key = "_id"
			}
			v := doc[key]
			if dt, ok := v.(primitive.DateTime); ok {
				v = dt.Time().UTC()
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	return rows, columns, nil
}
