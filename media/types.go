// media/types.go
package media

type AssetType string

const (
	AssetTypeThumbnail AssetType = "thumbnail"
	AssetTypeArchive   AssetType = "archive"
	AssetTypeUnknown   AssetType = "unknown"
)

// ImageProcessingOptions holds parameters for still normalisation
type ImageProcessingOptions struct {
	MaxDimension int // longest side; 0 keeps the grabbed size
	Quality      int // JPEG quality
}

// DefaultImageOptions matches what the browser-side grabber produced: JPEG at 0.85
var DefaultImageOptions = ImageProcessingOptions{
	MaxDimension: 1920,
	Quality:      85,
}
