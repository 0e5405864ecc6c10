// Command seedevents loads event metadata from a JSON file into the events
// table. The booking core reads events but does not manage them; this stands
// in for the catalogue service in development.
//
//	go run ./cmd/seedevents events.json
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/database"
	"github.com/iliyamo/ticket-booking-core/internal/model"
	"github.com/iliyamo/ticket-booking-core/internal/repository"
)

type eventJSON struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   int       `json:"capacity"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
}

func main() {
	_ = godotenv.Load()
	log := logrus.New()
	if len(os.Args) != 2 {
		log.Fatal("usage: seedevents <events.json>")
	}
	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("reading events file")
	}
	var events []eventJSON
	if err := json.Unmarshal(raw, &events); err != nil {
		log.WithError(err).Fatal("decoding events file")
	}

	db, err := database.Open(os.Getenv("DB_USER"), os.Getenv("DB_PASS"), os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME"))
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	ctx := context.Background()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("schema migration failed")
	}
	repo := repository.NewEventRepo(db)
	for _, e := range events {
		ev := model.Event{
			ID:         e.ID,
			Status:     model.EventStatus(e.Status),
			StartsAt:   e.StartsAt.UTC(),
			Capacity:   e.Capacity,
			PriceCents: e.PriceCents,
			Currency:   e.Currency,
		}
		if ev.ID == "" || ev.Capacity < 0 {
			log.WithField("event_id", ev.ID).Warn("skipping invalid event")
			continue
		}
		if err := repo.Upsert(ctx, ev); err != nil {
			log.WithError(err).WithField("event_id", ev.ID).Fatal("upsert failed")
		}
		log.WithFields(logrus.Fields{"event_id": ev.ID, "capacity": ev.Capacity}).Info("event seeded")
	}
}
