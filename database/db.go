/*
Copyright 2025 Inkpreview Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/inkpreview/inkpreview/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	err = createCreditBalanceTable(db)
	if err != nil {
		return nil, err
	}
	err = createBodyPhotoTable(db)
	if err != nil {
		return nil, err
	}
	err = createDesignTable(db)
	if err != nil {
		return nil, err
	}
	err = createPreviewJobTable(db)
	if err != nil {
		return nil, err
	}
	err = createPreviewResultTable(db)
	if err != nil {
		return nil, err
	}
	err = createPaymentTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

func createCreditBalanceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_credits (
			id SERIAL PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			credits BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createBodyPhotoTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS body_photos (
			id SERIAL PRIMARY KEY,
			body_photo_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			part TEXT NOT NULL,
			image_url TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, image_url)
		)
	`)
	return err
}

func createDesignTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS designs (
			id SERIAL PRIMARY KEY,
			design_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			image_url TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createPreviewJobTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preview_jobs (
			id SERIAL PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			body_photo_id TEXT NOT NULL REFERENCES body_photos(body_photo_id),
			design_id TEXT NOT NULL REFERENCES designs(design_id),
			status TEXT NOT NULL DEFAULT 'queued',
			prediction_id TEXT,
			prompt TEXT NOT NULL,
			seed BIGINT,
			variant_params JSONB,
			error_message TEXT,
			credits_refunded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_preview_jobs_prediction_id ON preview_jobs(prediction_id);
		CREATE INDEX IF NOT EXISTS idx_preview_jobs_user_id ON preview_jobs(user_id);
	`)
	return err
}

func createPreviewResultTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preview_results (
			id SERIAL PRIMARY KEY,
			result_id TEXT NOT NULL UNIQUE,
			job_id TEXT NOT NULL REFERENCES preview_jobs(job_id),
			image_url TEXT NOT NULL,
			thumb_url TEXT,
			width INTEGER,
			height INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (job_id, image_url)
		)
	`)
	return err
}

func createPaymentTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payments (
			id SERIAL PRIMARY KEY,
			payment_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			stripe_session_id TEXT UNIQUE,
			stripe_payment_intent_id TEXT,
			amount NUMERIC(10,2) NOT NULL,
			purpose TEXT NOT NULL,
			status TEXT NOT NULL,
			meta_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
