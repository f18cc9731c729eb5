package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/overplus/booking-service/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	if err := seedProviders(context.Background(), pool, 100); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedSlots(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("ensuring schema")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			specialty TEXT,
			email TEXT,
			phone TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			id UUID PRIMARY KEY,
			provider_id UUID NOT NULL REFERENCES providers(id),
			specialty TEXT NOT NULL,
			visit_date DATE NOT NULL,
			visit_time TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'available',
			holder_session TEXT,
			hold_expires_at TIMESTAMPTZ,
			patient_name TEXT,
			patient_national_id TEXT,
			patient_phone TEXT,
			patient_email TEXT,
			patient_age INT,
			patient_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_expired_holds
			ON slots (hold_expires_at) WHERE status = 'held'`,
		`CREATE TABLE IF NOT EXISTS payment_links (
			token TEXT PRIMARY KEY,
			slot_id UUID NOT NULL,
			session_id TEXT NOT NULL,
			patient_name TEXT,
			patient_national_id TEXT,
			patient_phone TEXT,
			patient_email TEXT,
			patient_age INT,
			patient_reason TEXT,
			amount_cents BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL,
			used BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_links_slot ON payment_links (slot_id)`,
		`CREATE TABLE IF NOT EXISTS booking_events (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			slot_id UUID,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS notification_attempts (
			id BIGSERIAL PRIMARY KEY,
			slot_id UUID NOT NULL,
			channel TEXT NOT NULL,
			attempt INT NOT NULL,
			accepted BOOLEAN NOT NULL,
			provider_id TEXT,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	log.Println("schema ready")
	return nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		email := gofakeit.Email()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, email, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, name, spec, email, phone)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("providers seeded")
	return nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d slots", count)

	rows, err := pool.Query(ctx, `SELECT id, specialty FROM providers`)
	if err != nil {
		return err
	}
	defer rows.Close()

	type provider struct {
		id        uuid.UUID
		specialty string
	}
	var providers []provider
	for rows.Next() {
		var p provider
		var spec *string
		if err := rows.Scan(&p.id, &spec); err != nil {
			return err
		}
		if spec != nil {
			p.specialty = *spec
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(providers) == 0 {
		return fmt.Errorf("no providers to attach slots to")
	}

	locations := []string{"Clinic A", "Clinic B", "Downtown Branch", "East Wing", "Telehealth"}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			p := providers[gofakeit.Number(0, len(providers)-1)]
			visitDate := time.Now().AddDate(0, 0, gofakeit.Number(1, 30))
			visitTime := fmt.Sprintf("%02d:%02d", gofakeit.Number(9, 17), 30*gofakeit.Number(0, 1))
			location := locations[gofakeit.Number(0, len(locations)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO slots (id, provider_id, specialty, visit_date, visit_time, location, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 'available', now(), now())
			`, uuid.New(), p.id, p.specialty, visitDate, visitTime, location)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("slots seeded: %d/%d", end, count)
	}

	log.Println("slots seeded")
	return nil
}
