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

type appointmentDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	UserEmail   string    `bson:"user_email"`
	UserName    string    `bson:"user_name"`
	SlotID      string    `bson:"slot_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Status      string    `bson:"status"`
	IsDeleted   bool      `bson:"is_deleted"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d appointmentDoc) model() models.Appointment {
	return models.Appointment{
		ID:          d.ID,
		UserID:      d.UserID,
		UserEmail:   d.UserEmail,
		UserName:    d.UserName,
		SlotID:      d.SlotID,
		Title:       d.Title,
		Description: d.Description,
		Status:      models.Status(d.Status),
		IsDeleted:   d.IsDeleted,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (s *Store) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = store.NewID()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	_, err := s.appointments.InsertOne(ctx, appointmentDoc{
		ID:          appt.ID,
		UserID:      appt.UserID,
		UserEmail:   appt.UserEmail,
		UserName:    appt.UserName,
		SlotID:      appt.SlotID,
		Title:       appt.Title,
		Description: appt.Description,
		Status:      string(appt.Status),
		IsDeleted:   appt.IsDeleted,
		CreatedAt:   appt.CreatedAt,
		UpdatedAt:   appt.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	var doc appointmentDoc
	err := s.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	appt := doc.model()
	return &appt, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	q, err := s.appointmentQuery(ctx, filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.appointments.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	var docs []appointmentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}
	out := make([]models.Appointment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) CountAppointments(ctx context.Context, filter store.AppointmentFilter) (int, error) {
	q, err := s.appointmentQuery(ctx, filter)
	if err != nil {
		return 0, err
	}
	n, err := s.appointments.CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return int(n), nil
}

func (s *Store) UpdateAppointment(ctx context.Context, id string, patch models.AppointmentPatch) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.SlotID != nil {
		set["slot_id"] = *patch.SlotID
	}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.IsDeleted != nil {
		set["is_deleted"] = *patch.IsDeleted
	}

	res, err := s.appointments.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update appointment %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) appointmentQuery(ctx context.Context, filter store.AppointmentFilter) (bson.M, error) {
	q := bson.M{}
	if !filter.IncludeDeleted {
		q["is_deleted"] = false
	}
	if filter.UserID != "" {
		q["user_id"] = filter.UserID
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q["status"] = bson.M{"$in": statuses}
	}
	if !filter.CreatedSince.IsZero() {
		q["created_at"] = bson.M{"$gte": filter.CreatedSince.UTC()}
	}
	if filter.SlotDate != "" {
		slots, err := s.findSlots(ctx, bson.M{"date": filter.SlotDate})
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(slots))
		for i, sl := range slots {
			ids[i] = sl.ID
		}
		q["slot_id"] = bson.M{"$in": ids}
	}
	return q, nil
}
