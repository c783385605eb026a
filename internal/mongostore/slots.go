package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"schedulease/internal/models"
	"schedulease/internal/store"
)

type slotDoc struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	ParentID  string    `bson:"parent_id,omitempty"`
	Date      string    `bson:"date"`
	TimeStart string    `bson:"time_start"`
	TimeEnd   string    `bson:"time_end"`
	IsBooked  bool      `bson:"is_booked"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d slotDoc) model() models.Slot {
	return models.Slot{
		ID:        d.ID,
		Kind:      models.SlotKind(d.Kind),
		ParentID:  d.ParentID,
		Date:      d.Date,
		TimeStart: d.TimeStart,
		TimeEnd:   d.TimeEnd,
		IsBooked:  d.IsBooked,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *Store) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = store.NewID()
	}
	if slot.Kind == "" {
		slot.Kind = models.SlotKindWindow
	}
	now := time.Now().UTC()
	slot.CreatedAt, slot.UpdatedAt = now, now

	_, err := s.slots.InsertOne(ctx, slotDoc{
		ID:        slot.ID,
		Kind:      string(slot.Kind),
		ParentID:  slot.ParentID,
		Date:      slot.Date,
		TimeStart: slot.TimeStart,
		TimeEnd:   slot.TimeEnd,
		IsBooked:  slot.IsBooked,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (*models.Slot, error) {
	return s.findOneSlot(ctx, bson.M{"_id": id}, nil)
}

func (s *Store) FindContaining(ctx context.Context, date, start, end string) (*models.Slot, error) {
	filter := bson.M{
		"kind":       string(models.SlotKindWindow),
		"date":       date,
		"time_start": bson.M{"$lte": start},
		"time_end":   bson.M{"$gte": end},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "is_booked", Value: 1}, {Key: "time_start", Value: 1}})
	return s.findOneSlot(ctx, filter, opts)
}

func (s *Store) FindOverlapping(ctx context.Context, date, start, end string) ([]models.Slot, error) {
	filter := bson.M{
		"date":       date,
		"is_booked":  true,
		"time_start": bson.M{"$lt": end},
		"time_end":   bson.M{"$gt": start},
	}
	return s.findSlots(ctx, filter)
}

func (s *Store) SetBooked(ctx context.Context, id string, booked bool) error {
	res, err := s.slots.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_booked": booked, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("set booked %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ClaimSlot(ctx context.Context, id string) error {
	err := s.slots.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "is_booked": false},
		bson.M{"$set": bson.M{"is_booked": true, "updated_at": time.Now().UTC()}},
	).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("claim slot %s: %w", id, err)
	}
	if _, err := s.GetSlot(ctx, id); err != nil {
		return err
	}
	return store.ErrSlotTaken
}

func (s *Store) ListSlots(ctx context.Context, filter store.SlotFilter) ([]models.Slot, error) {
	q := bson.M{}
	if filter.Date != "" {
		q["date"] = filter.Date
	}
	if filter.Kind != "" {
		q["kind"] = string(filter.Kind)
	}
	if filter.OnlyFree {
		q["is_booked"] = false
	}
	return s.findSlots(ctx, q)
}

func (s *Store) DeleteSlot(ctx context.Context, id string) error {
	res, err := s.slots.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) findOneSlot(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.Slot, error) {
	var doc slotDoc
	var err error
	if opts != nil {
		err = s.slots.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = s.slots.FindOne(ctx, filter).Decode(&doc)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find slot: %w", err)
	}
	slot := doc.model()
	return &slot, nil
}

func (s *Store) findSlots(ctx context.Context, filter bson.M) ([]models.Slot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "time_start", Value: 1}, {Key: "time_end", Value: 1}})
	cursor, err := s.slots.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find slots: %w", err)
	}
	var docs []slotDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	out := make([]models.Slot, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}
