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

package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/inkpreview/inkpreview"
)

// CreatePreview is the submission request body.
type CreatePreview struct {
	BodyImageURL   string  `json:"body_image_url"`
	DesignImageURL string  `json:"design_image_url"`
	Part           string  `json:"part"`
	Variant        string  `json:"variant"`
	Scale          float64 `json:"scale"`
	RotationDeg    float64 `json:"rotation_deg"`
	Opacity        float64 `json:"opacity"`
	Seed           int64   `json:"seed"`
	CustomPrompt   string  `json:"custom_prompt"`
}

var bodyParts = []interface{}{
	"arm", "hand", "ear", "neck", "leg", "back",
	"chest", "shoulder", "ankle", "wrist", "forearm", "other",
}

func (p *CreatePreview) ValidateCreatePreview() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.BodyImageURL, validation.Required),
		validation.Field(&p.DesignImageURL, validation.Required),
		validation.Field(&p.Part, validation.Required, validation.In(bodyParts...)),
		validation.Field(&p.Variant, validation.In(
			inkpreview.VariantColor,
			inkpreview.VariantBlackGray,
			inkpreview.VariantFineLine,
			inkpreview.VariantWatercolor,
		)),
		validation.Field(&p.Scale, validation.Min(0.0), validation.Max(3.0)),
		validation.Field(&p.RotationDeg, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&p.Opacity, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ToSubmitRequest applies defaults and converts to the service request.
func (p *CreatePreview) ToSubmitRequest(userID string) *inkpreview.SubmitPreviewRequest {
	variant := p.Variant
	if variant == "" {
		variant = inkpreview.VariantBlackGray
	}
	scale := p.Scale
	if scale == 0 {
		scale = 1.0
	}
	opacity := p.Opacity
	if opacity == 0 {
		opacity = 1.0
	}

	return &inkpreview.SubmitPreviewRequest{
		UserID:         userID,
		BodyImageURL:   p.BodyImageURL,
		DesignImageURL: p.DesignImageURL,
		Part:           p.Part,
		Variant:        variant,
		Scale:          scale,
		RotationDeg:    p.RotationDeg,
		Opacity:        opacity,
		Seed:           p.Seed,
		CustomPrompt:   p.CustomPrompt,
	}
}
