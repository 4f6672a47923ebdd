package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/camden-git/framesys/models"
)

var stylePhrases = map[models.StyleKey]string{
	models.StyleUnblur:            "sharpen and remove blur",
	models.StyleCinematicLighting: "apply cinematic lighting",
	models.StylePortraitBokeh:     "add portrait bokeh effect",
	models.StyleRemoveBackground:  "remove background",
	models.StyleColorPop:          "enhance colors with color pop",
	models.StyleHDR:               "apply HDR enhancement",
	models.StyleEnhanceDetail:     "enhance fine detail and texture",
	models.StyleUpscale:           "upscale to a higher resolution",
	models.StyleDenoise:           "reduce noise and grain",
}

// BuildInstruction turns a style selection into the provider prompt, one phrase
// per enabled style in canonical order.
func BuildInstruction(styles models.EnhancementStyles) string {
	var phrases []string
	for _, key := range styles.Enabled() {
		phrases = append(phrases, stylePhrases[key])
	}
	return fmt.Sprintf("Enhance this image with the following improvements: %s. Maintain the original composition and subject.", strings.Join(phrases, ", "))
}

// ValidateStyles rejects unknown keys and empty selections
func ValidateStyles(styles models.EnhancementStyles) error {
	if err := styles.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownStyle, err)
	}
	if styles.IsEmpty() {
		return ErrNoStyleSelected
	}
	return nil
}

// EnhancementClient runs generative enhancement through a provider under the retry policy
type EnhancementClient struct {
	provider EnhancementProvider
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewEnhancementClient(provider EnhancementProvider, retry RetryPolicy, logger *slog.Logger) *EnhancementClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnhancementClient{provider: provider, retry: retry, logger: logger.With("component", "ai.enhancement", "provider", provider.Name())}
}

// Enhance returns a new image. An empty selection fails with ErrNoStyleSelected
// before any call is made.
func (c *EnhancementClient) Enhance(ctx context.Context, image []byte, styles models.EnhancementStyles) ([]byte, error) {
	if err := ValidateStyles(styles); err != nil {
		return nil, err
	}
	instruction := BuildInstruction(styles)

	var out []byte
	err := c.retry.Do(ctx, "enhance", func(ctx context.Context) error {
		img, err := c.provider.EnhanceImage(ctx, image, instruction)
		if err != nil {
			return err
		}
		if len(img) == 0 {
			return schemaError(c.provider.Name(), "enhancement returned no image")
		}
		out = img
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("enhancement complete", "styles", styles.Enabled(), "bytes", len(out))
	return out, nil
}
