package handler

import (
	"net/http"
	"strconv"
	"strings"

	"callcast/internal/middleware"
	"callcast/internal/service"
	"callcast/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// upload folders by kind
var uploadFolders = map[string]string{
	"avatar": "avatars",
	"tweet":  "tweets",
	"chat":   "chat",
}

type UploadHandler struct {
	cloud   cloudinary.Client
	members *service.MemberService
}

func NewUploadHandler(cloud cloudinary.Client, members *service.MemberService) *UploadHandler {
	return &UploadHandler{cloud: cloud, members: members}
}

// Upload handles POST /uploads/:kind with a multipart "file". Avatars are
// attached to the caller's profile; other kinds just return the URL.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are not configured"})
		return
	}
	kind := c.Param("kind")
	sub, ok := uploadFolders[kind]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown upload kind"})
		return
	}
	userID := middleware.GetUserID(c)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()

	folder := sub + "/" + strconv.FormatUint(uint64(userID), 10)
	publicID := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	upload := h.cloud.UploadImage
	if strings.HasPrefix(file.Header.Get("Content-Type"), "video/") && kind != "avatar" {
		upload = h.cloud.UploadVideo
	}
	url, thumb, err := upload(c.Request.Context(), f, folder, publicID)
	if err != nil {
		fail(c, err, "upload failed")
		return
	}
	if kind == "avatar" {
		media, err := h.members.AddAvatar(userID, url)
		if err != nil {
			fail(c, err, "failed to save avatar")
			return
		}
		c.JSON(http.StatusCreated, media)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url, "thumbnail": thumb})
}
