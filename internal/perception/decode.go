package perception

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// decodeDimensions decodes image bytes far enough to read the pixel grid's
// dimensions. A decode failure is not an error in this pipeline — callers
// treat a false ok as "no tracks this frame".
func decodeDimensions(imageBytes []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageBytes))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
