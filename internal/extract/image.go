package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	"github.com/tmc/langchaingo/llms"

	"github.com/nao1215/marginalia/internal/model"
)

// MaxImageSize is the largest image read from disk or over HTTP.
const MaxImageSize = 20 << 20

// Image sources recorded in model.ImageInfo.
const (
	SourceFile = "file"
	SourceURL  = "url"
	SourceData = "data"
)

// ErrImageUnreadable is returned when an image reference cannot be read.
var ErrImageUnreadable = errors.New("image cannot be read")

// Image is a resolved image reference.
type Image struct {
	// Ref is the reference as given: a path, an http(s) URL or a data URL.
	Ref string

	// Data holds the image bytes. It is nil for remote images that were
	// not fetched.
	Data []byte

	Info *model.ImageInfo
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// LoadImage resolves ref. Data URLs are decoded and local paths are read.
// Remote images are fetched with client; when client is nil they are left
// unfetched and only their URL is recorded.
func LoadImage(ctx context.Context, ref string, client *http.Client) (*Image, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		data, mimeType, err := decodeDataURL(ref)
		if err != nil {
			return nil, err
		}
		img := newImage(ref, SourceData, data)
		if mimeType != "" {
			img.Info.MIMEType = mimeType
		}
		return img, nil
	case IsRemote(ref):
		if client == nil {
			return &Image{
				Ref:  ref,
				Info: &model.ImageInfo{Source: SourceURL, MIMEType: mime.TypeByExtension(path.Ext(ref))},
			}, nil
		}
		data, err := fetch(ctx, client, ref)
		if err != nil {
			return nil, err
		}
		return newImage(ref, SourceURL, data), nil
	default:
		data, err := readFile(ref)
		if err != nil {
			return nil, err
		}
		return newImage(ref, SourceFile, data), nil
	}
}

// Part returns the image as a message part. Providers that accept URLs get
// the remote URL or a base64 data URL; the rest get raw bytes.
func (img *Image) Part(provider string) (llms.ContentPart, error) {
	if img.Data == nil {
		if !usesImageURL(provider) {
			return nil, fmt.Errorf("%w: %s needs image bytes but %s was not fetched", ErrImageUnreadable, provider, img.Ref)
		}
		return llms.ImageURLPart(img.Ref), nil
	}
	if usesImageURL(provider) {
		return llms.ImageURLPart(img.DataURL()), nil
	}
	return llms.BinaryPart(img.Info.MIMEType, img.Data), nil
}

// DataURL returns the image bytes as a base64 data URL.
func (img *Image) DataURL() string {
	return "data:" + img.Info.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func newImage(ref, source string, data []byte) *Image {
	info := &model.ImageInfo{
		Source:   source,
		MIMEType: http.DetectContentType(data),
		Size:     int64(len(data)),
	}
	readEXIF(data, info)
	return &Image{Ref: ref, Data: data, Info: info}
}

func readFile(name string) ([]byte, error) {
	f, err := os.Open(name) //nolint:gosec // the path is supplied by the user on purpose
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	if st.Size() > MaxImageSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrImageUnreadable, name, MaxImageSize)
	}
	data, err := io.ReadAll(io.LimitReader(f, MaxImageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	return data, nil
}

func fetch(ctx context.Context, client *http.Client, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrImageUnreadable, imageURL, resp.Status)
	}
	if resp.ContentLength > MaxImageSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrImageUnreadable, imageURL, MaxImageSize)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageUnreadable, err)
	}
	return data, nil
}

func decodeDataURL(dataURL string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data URL", ErrImageUnreadable)
	}
	mimeType, _, _ := strings.Cut(header, ";")
	if !strings.HasSuffix(header, ";base64") {
		return []byte(payload), mimeType, nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrImageUnreadable, err)
		}
	}
	return data, mimeType, nil
}

// readEXIF copies the descriptive EXIF tags into info. Images without EXIF
// leave info untouched.
func readEXIF(data []byte, info *model.ImageInfo) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return
	}

	for _, entry := range entries {
		value := strings.TrimSpace(entry.Formatted)
		switch entry.TagName {
		case "Make":
			info.Make = value
		case "Model":
			info.Model = value
		case "DateTime":
			info.DateTime = value
		case "DateTimeOriginal":
			if info.DateTime == "" {
				info.DateTime = value
			}
		case "Orientation":
			info.Orientation = value
		case "Software":
			info.Software = value
		}
	}
}
