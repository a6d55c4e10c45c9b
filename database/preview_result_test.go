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
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/inkpreview/inkpreview/model"
)

func TestInsertResultIfAbsent_Inserted(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	result := model.PreviewResult{
		JobID:    "job_" + gofakeit.UUID(),
		ImageURL: gofakeit.URL(),
		Width:    1024,
		Height:   1024,
	}

	mock.ExpectQuery("INSERT INTO preview_results").
		WithArgs(sqlmock.AnyArg(), result.JobID, result.ImageURL, "", 1024, 1024, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))

	stored, inserted, err := ds.InsertResultIfAbsent(context.Background(), &result)
	assert.NoError(t, err)
	assert.True(t, inserted)
	assert.Contains(t, stored.ResultID, "res_")
	assert.WithinDuration(t, time.Now(), stored.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertResultIfAbsent_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	result := model.PreviewResult{
		JobID:    "job_" + gofakeit.UUID(),
		ImageURL: gofakeit.URL(),
	}

	// ON CONFLICT DO NOTHING returns no row when the key already exists.
	mock.ExpectQuery("INSERT INTO preview_results").
		WillReturnError(sql.ErrNoRows)

	_, inserted, err := ds.InsertResultIfAbsent(context.Background(), &result)
	assert.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResultsByJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	jobID := "job_" + gofakeit.UUID()

	rows := sqlmock.NewRows([]string{"result_id", "job_id", "image_url", "thumb_url", "width", "height", "created_at"}).
		AddRow("res_1", jobID, "https://cdn.example/one.png", "", 1024, 1024, time.Now()).
		AddRow("res_2", jobID, "https://cdn.example/two.png", "https://cdn.example/two_t.png", 0, 0, time.Now())

	mock.ExpectQuery("SELECT .* FROM preview_results").
		WithArgs(jobID).
		WillReturnRows(rows)

	results, err := ds.GetResultsByJob(context.Background(), jobID)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "https://cdn.example/one.png", results[0].ImageURL)
	assert.Equal(t, "https://cdn.example/two_t.png", results[1].ThumbURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}
