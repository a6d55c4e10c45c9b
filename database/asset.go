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
	"time"

	"github.com/inkpreview/inkpreview/internal/apierror"
	"github.com/inkpreview/inkpreview/model"
)

// UpsertBodyPhoto gets or creates the body photo identified by the natural
// key (user_id, image_url). The DO UPDATE arm is a no-op write that lets
// RETURNING yield the existing row, so concurrent submissions of the same
// photo converge on one record.
func (d Datasource) UpsertBodyPhoto(ctx context.Context, userID, part, imageURL string) (*model.BodyPhoto, error) {
	photo := model.BodyPhoto{
		UserID:   userID,
		Part:     part,
		ImageURL: imageURL,
	}

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO body_photos (body_photo_id, user_id, part, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, image_url) DO UPDATE SET image_url = EXCLUDED.image_url
		RETURNING body_photo_id, part, created_at
	`, GenerateUUIDWithSuffix("bdy"), userID, part, imageURL, time.Now()).
		Scan(&photo.BodyPhotoID, &photo.Part, &photo.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert body photo", err)
	}

	return &photo, nil
}

// UpsertDesign gets or creates the design identified by its image URL.
func (d Datasource) UpsertDesign(ctx context.Context, title, imageURL string) (*model.Design, error) {
	design := model.Design{
		ImageURL: imageURL,
	}

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO designs (design_id, title, image_url, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (image_url) DO UPDATE SET image_url = EXCLUDED.image_url
		RETURNING design_id, title, created_at
	`, GenerateUUIDWithSuffix("dsn"), title, imageURL, time.Now()).
		Scan(&design.DesignID, &design.Title, &design.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert design", err)
	}

	return &design, nil
}
