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
	"errors"
	"time"

	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/model"
)

// InsertResultIfAbsent writes a result row unless one with the same image URL
// already exists for the job. Duplicate terminal events (a webhook redelivery,
// a poll racing a webhook) land on the same (job_id, image_url) key and
// collapse into one row. The returned bool reports whether this call wrote.
func (d Datasource) InsertResultIfAbsent(ctx context.Context, result *model.PreviewResult) (*model.PreviewResult, bool, error) {
	if result.ResultID == "" {
		result.ResultID = GenerateUUIDWithSuffix("res")
	}
	result.CreatedAt = time.Now()

	var inserted bool
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO preview_results (result_id, job_id, image_url, thumb_url, width, height, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, 0), $7)
		ON CONFLICT (job_id, image_url) DO NOTHING
		RETURNING true
	`, result.ResultID, result.JobID, result.ImageURL, result.ThumbURL, result.Width, result.Height, result.CreatedAt).Scan(&inserted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, false, nil
		}
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert preview result", err)
	}

	return result, true, nil
}

// GetResultsByJob lists the artifacts produced for a job, oldest first.
func (d Datasource) GetResultsByJob(ctx context.Context, jobID string) ([]model.PreviewResult, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT result_id, job_id, image_url, COALESCE(thumb_url, '') as thumb_url,
			COALESCE(width, 0) as width, COALESCE(height, 0) as height, created_at
		FROM preview_results
		WHERE job_id = $1
		ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve preview results", err)
	}
	defer rows.Close()

	results := []model.PreviewResult{}
	for rows.Next() {
		result := model.PreviewResult{}
		err = rows.Scan(&result.ResultID, &result.JobID, &result.ImageURL, &result.ThumbURL,
			&result.Width, &result.Height, &result.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan preview result", err)
		}
		results = append(results, result)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over results", err)
	}

	return results, nil
}
