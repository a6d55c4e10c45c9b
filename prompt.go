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

package inkpreview

import (
	"fmt"
	"math"
	"strings"

	"github.com/inkpreview/inkpreview/model"
)

// Variant vocabulary accepted by prompt derivation. Anything else falls back
// to the full color clause.
const (
	VariantColor      = "color"
	VariantBlackGray  = "black_gray"
	VariantFineLine   = "fine_line"
	VariantWatercolor = "watercolor"
)

// BuildTattooPrompt derives the generation prompt from placement parameters.
// The derivation is pure: the same parameters always yield the same string,
// which is what makes stored prompts reproducible and diffable across a
// user's variation history.
func BuildTattooPrompt(params model.PromptParams) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Apply the tattoo design from the second image onto the %s shown in the first image. ", params.Part))

	switch params.Variant {
	case VariantBlackGray:
		prompt.WriteString("Make it a black and grey tattoo with no color. ")
	case VariantFineLine:
		prompt.WriteString("Make it a fine line tattoo with delicate strokes. ")
	case VariantWatercolor:
		prompt.WriteString("Make it a watercolor style tattoo with soft edges and color diffusion. ")
	default:
		prompt.WriteString("Make it a full color realistic tattoo. ")
	}

	if params.Scale != 0 && params.Scale != 1 {
		percentage := int(math.Round(params.Scale * 100))
		if percentage > 100 {
			prompt.WriteString(fmt.Sprintf("Make the tattoo larger, about %d%% of the original design size. ", percentage))
		} else {
			prompt.WriteString(fmt.Sprintf("Make the tattoo smaller, about %d%% of the original design size. ", percentage))
		}
	}

	if params.RotationDeg != 0 {
		direction := "clockwise"
		if params.RotationDeg < 0 {
			direction = "counter-clockwise"
		}
		prompt.WriteString(fmt.Sprintf("Rotate the design %v degrees %s. ", math.Abs(params.RotationDeg), direction))
	}

	if params.Opacity != 0 && params.Opacity < 1 {
		percentage := int(math.Round(params.Opacity * 100))
		prompt.WriteString(fmt.Sprintf("Make the tattoo appear faded or lighter, about %d%% opacity. ", percentage))
	}

	prompt.WriteString("Make the scene natural. The tattoo should look realistic on the skin, following the body's natural contours and lighting.")

	return prompt.String()
}

// BuildVariationPrompt rebuilds a prompt with selective overrides on top of a
// base set of parameters. Zero-valued override fields keep the base value, so
// a variation request only names what it changes.
func BuildVariationPrompt(base model.PromptParams, overrides model.PromptParams) string {
	merged := base
	if overrides.Part != "" {
		merged.Part = overrides.Part
	}
	if overrides.Variant != "" {
		merged.Variant = overrides.Variant
	}
	if overrides.Scale != 0 {
		merged.Scale = overrides.Scale
	}
	if overrides.RotationDeg != 0 {
		merged.RotationDeg = overrides.RotationDeg
	}
	if overrides.Opacity != 0 {
		merged.Opacity = overrides.Opacity
	}
	return BuildTattooPrompt(merged)
}
