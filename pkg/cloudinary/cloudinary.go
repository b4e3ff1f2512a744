package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// Client uploads member media: avatars, tweet images and chat attachments.
type Client interface {
	UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error)
	UploadVideo(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error)
	DeleteByURL(ctx context.Context, url string) error
}

// Optimized image params for fast frontend loading
const (
	ImageWidth = 800
	ThumbWidth = 200
)

// BuildOptimizedImageURL returns a Cloudinary URL with transformations for optimized delivery.
func BuildOptimizedImageURL(cloudName, publicID string, width int) string {
	if width <= 0 {
		width = ImageWidth
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/q_auto,f_auto,w_%d,c_fill/%s",
		cloudName, width, publicID)
}

// PublicIDFromURL recovers "folder/name" from a delivery URL, skipping any
// transformation and version segments.
func PublicIDFromURL(u string) (resourceType, publicID string, ok bool) {
	i := strings.Index(u, "/upload/")
	if i < 0 {
		return "", "", false
	}
	head := strings.TrimSuffix(u[:i], "/")
	resourceType = path.Base(head)
	parts := strings.Split(u[i+len("/upload/"):], "/")
	for len(parts) > 1 {
		p := parts[0]
		if isVersion(p) {
			parts = parts[1:]
			break
		}
		if !strings.Contains(p, ",") && !isTransformation(p) {
			break
		}
		parts = parts[1:]
	}
	id := strings.Join(parts, "/")
	if ext := path.Ext(id); ext != "" {
		id = strings.TrimSuffix(id, ext)
	}
	if id == "" {
		return "", "", false
	}
	return resourceType, id, true
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isTransformation matches single-parameter segments like "w_200" or "q_auto".
func isTransformation(s string) bool {
	k, _, found := strings.Cut(s, "_")
	return found && len(k) <= 2
}

// Eager transformations for upload (single string per SDK)
const (
	imageEager = "q_auto,f_auto,w_800,c_fill"
	videoEager = "q_auto:low,f_auto,w_1280"
)

var eagerAsyncFalse = false

type clientImpl struct {
	cloudName string
	folder    string
	uploader  *uploader.API
}

func (c *clientImpl) folderFor(sub string) string {
	if c.folder == "" {
		return sub
	}
	return path.Join(c.folder, sub)
}

// UploadImage uploads an image with eager optimizations (auto quality, format, resize).
func (c *clientImpl) UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:     c.folderFor(folder),
		PublicID:   publicID,
		Eager:      imageEager,
		EagerAsync: &eagerAsyncFalse,
	})
	if err != nil {
		return "", "", err
	}
	url = result.SecureURL
	if len(result.Eager) > 0 {
		thumbnailURL = result.Eager[0].SecureURL
	}
	if thumbnailURL == "" {
		thumbnailURL = BuildOptimizedImageURL(c.cloudName, result.PublicID, ThumbWidth)
	}
	return url, thumbnailURL, nil
}

// UploadVideo uploads a chat video with eager optimization.
func (c *clientImpl) UploadVideo(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:       c.folderFor(folder),
		PublicID:     publicID,
		ResourceType: "video",
		Eager:        videoEager,
		EagerAsync:   &eagerAsyncFalse,
	})
	if err != nil {
		return "", "", err
	}
	url = result.SecureURL
	if len(result.Eager) > 0 {
		thumbnailURL = result.Eager[0].SecureURL
	}
	if thumbnailURL == "" {
		thumbnailURL = fmt.Sprintf("https://res.cloudinary.com/%s/video/upload/so_0/%s.jpg", c.cloudName, result.PublicID)
	}
	return url, thumbnailURL, nil
}

// DeleteByURL destroys the asset behind a delivery URL. URLs from other hosts are ignored.
func (c *clientImpl) DeleteByURL(ctx context.Context, url string) error {
	if !strings.Contains(url, "res.cloudinary.com/"+c.cloudName+"/") {
		return nil
	}
	resourceType, publicID, ok := PublicIDFromURL(url)
	if !ok {
		return fmt.Errorf("cloudinary: no public id in %q", url)
	}
	_, err := c.uploader.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	return err
}

// NewClientFromParams builds a Client from Cloudinary cloud name, API key, and secret.
// folder prefixes every upload.
func NewClientFromParams(cloudName, apiKey, apiSecret, folder string) (Client, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{
		cloudName: cloudName,
		folder:    folder,
		uploader:  up,
	}, nil
}
