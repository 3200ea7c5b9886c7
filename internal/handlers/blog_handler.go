package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sparks-care/sparks-api/internal/models"
	"github.com/sparks-care/sparks-api/internal/storage"
	"github.com/sparks-care/sparks-api/internal/utils"
)

const maxCoverBytes = 5 << 20

type BlogRequest struct {
	Title    string `json:"title" binding:"required,notblank,max=255"`
	Category string `json:"category" binding:"max=64"`
	Content  string `json:"content" binding:"required"`
	Publish  bool   `json:"publish"`
}

// ListBlogs is public and only shows published posts.
func (h *Handler) ListBlogs(c *gin.Context) {
	q := h.DB.Preload("Author").Where("status = ?", models.BlogPublished)
	if category := c.Query("category"); category != "" {
		q = q.Where("category = ?", category)
	}
	blogs := make([]models.Blog, 0)
	if err := q.Order("published_at DESC").Find(&blogs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve blogs"})
		return
	}
	c.JSON(http.StatusOK, blogs)
}

func (h *Handler) GetBlog(c *gin.Context) {
	var blog models.Blog
	err := h.DB.Preload("Author").
		Where("slug = ? AND status = ?", c.Param("slug"), models.BlogPublished).
		First(&blog).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blog not found"})
		return
	}
	c.JSON(http.StatusOK, blog)
}

// MyBlogs lists the caller's posts, drafts included.
func (h *Handler) MyBlogs(c *gin.Context) {
	userID, _ := currentUser(c)
	blogs := make([]models.Blog, 0)
	if err := h.DB.Where("author_id = ?", userID).Order("created_at DESC").Find(&blogs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve blogs"})
		return
	}
	c.JSON(http.StatusOK, blogs)
}

// uniqueSlug appends -2, -3, ... until the slug is free.
func (h *Handler) uniqueSlug(title string, exceptID uint) (string, error) {
	base := utils.Slugify(title)
	if base == "" {
		base = "post"
	}
	slug := base
	for i := 2; ; i++ {
		var n int64
		q := h.DB.Unscoped().Model(&models.Blog{}).Where("slug = ?", slug)
		if exceptID != 0 {
			q = q.Where("id <> ?", exceptID)
		}
		if err := q.Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func (h *Handler) CreateBlog(c *gin.Context) {
	userID, _ := currentUser(c)
	var req BlogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slug, err := h.uniqueSlug(req.Title, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create blog"})
		return
	}
	blog := models.Blog{
		AuthorID: userID,
		Title:    strings.TrimSpace(req.Title),
		Slug:     slug,
		Category: req.Category,
		Content:  req.Content,
		Status:   models.BlogDraft,
	}
	if req.Publish {
		now := time.Now().UTC()
		blog.Status = models.BlogPublished
		blog.PublishedAt = &now
	}
	if err := h.DB.Omit("Author").Create(&blog).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create blog"})
		return
	}
	c.JSON(http.StatusCreated, blog)
}

// ownBlog loads :id and checks the caller may edit it. Admins edit any post.
func (h *Handler) ownBlog(c *gin.Context) (*models.Blog, bool) {
	userID, role := currentUser(c)
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var blog models.Blog
	if err := h.DB.First(&blog, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blog not found"})
		return nil, false
	}
	if blog.AuthorID != userID && role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied."})
		return nil, false
	}
	return &blog, true
}

func (h *Handler) UpdateBlog(c *gin.Context) {
	blog, ok := h.ownBlog(c)
	if !ok {
		return
	}
	var req BlogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{
		"title":    strings.TrimSpace(req.Title),
		"category": req.Category,
		"content":  req.Content,
	}
	if utils.Slugify(req.Title) != utils.Slugify(blog.Title) {
		slug, err := h.uniqueSlug(req.Title, blog.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update blog"})
			return
		}
		updates["slug"] = slug
	}
	switch {
	case req.Publish && blog.Status != models.BlogPublished:
		updates["status"] = models.BlogPublished
		updates["published_at"] = time.Now().UTC()
	case !req.Publish && blog.Status == models.BlogPublished:
		updates["status"] = models.BlogDraft
	}

	if err := h.DB.Model(blog).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update blog"})
		return
	}
	h.DB.First(blog, blog.ID)
	c.JSON(http.StatusOK, blog)
}

func (h *Handler) DeleteBlog(c *gin.Context) {
	blog, ok := h.ownBlog(c)
	if !ok {
		return
	}
	if err := h.DB.Delete(blog).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete blog"})
		return
	}
	if blog.CoverImage != "" && h.Storage != nil {
		if err := h.Storage.Delete(blog.CoverImage); err != nil {
			h.Log.Warn("delete cover image failed", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Blog deleted successfully"})
}

// UploadBlogCover takes a multipart "image" field.
func (h *Handler) UploadBlogCover(c *gin.Context) {
	blog, ok := h.ownBlog(c)
	if !ok {
		return
	}
	if h.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads are not available"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file is required"})
		return
	}
	if file.Size > maxCoverBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image must be 5MB or smaller"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to open the file"})
		return
	}
	defer src.Close()

	url, err := h.Storage.Save(c.Request.Context(), "blogs", file.Filename, src)
	if errors.Is(err, storage.ErrUnsupportedType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only jpg, png, gif and webp images are allowed"})
		return
	}
	if err != nil {
		h.Log.Error("save cover image failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to save the file"})
		return
	}

	old := blog.CoverImage
	if err := h.DB.Model(blog).Update("cover_image", url).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update blog"})
		return
	}
	if old != "" {
		_ = h.Storage.Delete(old)
	}
	blog.CoverImage = url
	c.JSON(http.StatusOK, blog)
}
