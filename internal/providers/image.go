package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"trailblazer_ai/internal/models"
)

const (
	// MaxImagesPerRequest bounds every analysis call
	MaxImagesPerRequest = 8
	// MaxDirectImageBytes is the per-image ceiling when calling a vendor directly
	MaxDirectImageBytes = 5 << 20
	// MaxProxiedImageBytes is the per-image ceiling when the billing proxy serves the call
	MaxProxiedImageBytes = 20 << 20
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"
	MimeWEBP = "image/webp"
	MimeHEIC = "image/heic"
	MimeHEIF = "image/heif"
)

// ImageLimits are the checks applied before any network call.
type ImageLimits struct {
	MaxImages     int
	MaxImageBytes int
	AllowedTypes  []string
}

// LimitsFor returns the limits a provider enforces.
func LimitsFor(identity models.ProviderIdentity, proxied bool) ImageLimits {
	limits := ImageLimits{
		MaxImages:     MaxImagesPerRequest,
		MaxImageBytes: MaxDirectImageBytes,
	}
	if proxied {
		limits.MaxImageBytes = MaxProxiedImageBytes
	}
	switch identity {
	case models.ProviderGoogle:
		limits.AllowedTypes = []string{MimeJPEG, MimePNG, MimeWEBP, MimeHEIC, MimeHEIF}
	case models.ProviderXAI:
		limits.AllowedTypes = []string{MimeJPEG, MimePNG}
	default:
		limits.AllowedTypes = []string{MimeJPEG, MimePNG, MimeGIF, MimeWEBP}
	}
	return limits
}

// UploadLimits is the union of every provider's allow-list, used at the upload boundary.
func UploadLimits() ImageLimits {
	return ImageLimits{
		MaxImages:     MaxImagesPerRequest,
		MaxImageBytes: MaxProxiedImageBytes,
		AllowedTypes:  []string{MimeJPEG, MimePNG, MimeGIF, MimeWEBP, MimeHEIC, MimeHEIF},
	}
}

// EncodedImage is an image ready to be put on the wire.
type EncodedImage struct {
	MediaType string
	Data      string // standard base64
}

// DataURL renders the image as a data URL.
func (e EncodedImage) DataURL() string {
	return "data:" + e.MediaType + ";base64," + e.Data
}

// ValidateImages checks count, size and type. Errors name the offending image index.
func ValidateImages(images []models.ImageInput, limits ImageLimits) error {
	if len(images) == 0 {
		return &ImageValidationError{Index: 0, Reason: ErrNoImages.Error()}
	}
	if limits.MaxImages > 0 && len(images) > limits.MaxImages {
		return &ImageValidationError{
			Index:  limits.MaxImages,
			Reason: fmt.Sprintf("too many images: %d supplied, limit is %d", len(images), limits.MaxImages),
		}
	}
	for i, img := range images {
		if len(img.Data) == 0 {
			return &ImageValidationError{Index: i, Reason: "image is empty"}
		}
		if limits.MaxImageBytes > 0 && len(img.Data) > limits.MaxImageBytes {
			return &ImageValidationError{
				Index:  i,
				Reason: fmt.Sprintf("image is %d bytes, limit is %d", len(img.Data), limits.MaxImageBytes),
			}
		}
		mime := ResolveMimeType(img)
		if len(limits.AllowedTypes) > 0 && !slices.Contains(limits.AllowedTypes, mime) {
			return &ImageValidationError{Index: i, Reason: fmt.Sprintf("unsupported image type %q", mime)}
		}
	}
	return nil
}

// EncodeImages validates, then base64-encodes images in parallel preserving order.
func EncodeImages(ctx context.Context, images []models.ImageInput, limits ImageLimits) ([]EncodedImage, error) {
	if err := ValidateImages(images, limits); err != nil {
		return nil, err
	}

	out := make([]EncodedImage, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = EncodedImage{
				MediaType: ResolveMimeType(img),
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveMimeType returns the declared type when present, else the sniffed one.
func ResolveMimeType(img models.ImageInput) string {
	if declared := normalizeMime(img.MimeType); declared != "" {
		return declared
	}
	return DetectMimeType(img.Data)
}

func normalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "image/jpg" || m == "image/pjpeg" {
		return MimeJPEG
	}
	return m
}

// DetectMimeType sniffs the image format from magic bytes, falling back to JPEG.
func DetectMimeType(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return MimeJPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return MimePNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return MimeGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return MimeWEBP
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		switch string(data[8:12]) {
		case "heic", "heix", "hevc", "hevx", "heim", "heis":
			return MimeHEIC
		case "mif1", "msf1", "heif":
			return MimeHEIF
		}
	}
	return MimeJPEG
}

// ParseImagePayload decodes a data URL or raw base64 string into an image.
// Raw base64 carries no declared type, so the type is sniffed.
func ParseImagePayload(payload string) (models.ImageInput, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return models.ImageInput{}, fmt.Errorf("empty image payload")
	}

	var declared, encoded string
	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok {
			return models.ImageInput{}, fmt.Errorf("malformed data URL")
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return models.ImageInput{}, fmt.Errorf("data URL is not base64 encoded")
		}
		declared = normalizeMime(strings.TrimSuffix(meta, ";base64"))
		encoded = data
	} else {
		encoded = payload
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return models.ImageInput{}, fmt.Errorf("invalid base64 image data: %w", err)
	}
	if declared == "" {
		declared = DetectMimeType(data)
	}
	return models.ImageInput{Data: data, MimeType: declared}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	encodings := []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding}
	var firstErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
