package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quillworks/quill/config"
	"github.com/quillworks/quill/models"
	"github.com/quillworks/quill/storage"
	"github.com/quillworks/quill/utils"
)

const (
	snippetLength     = 180
	searchLimitMax    = 20
	searchLimitNormal = 5
)

var allowedImageExt = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"webp": true,
}

var (
	errNoImage          = errors.New("no image attached")
	errInvalidImageType = errors.New("invalid image type")
	errImageTooLarge    = errors.New("image too large")
)

// PostController manages posts, comments, likes and search.
type PostController struct {
	db     *gorm.DB
	images storage.ImageStorage
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, images storage.ImageStorage) *PostController {
	return &PostController{db: db, images: images}
}

// CreatePost allows authenticated users to create new posts, optionally with
// an image attachment (multipart). The upload must succeed before the post
// record is written; a failed upload aborts creation.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var title, body string
	var tags models.StringList
	var imageData []byte
	var imageName string

	if isJSONRequest(ctx) {
		var req struct {
			Title string   `json:"title"`
			Body  string   `json:"body"`
			Tags  []string `json:"tags"`
		}
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
			return
		}
		title = req.Title
		body = req.Body
		tags = req.Tags
	} else {
		title = ctx.PostForm("title")
		body = ctx.PostForm("body")
		tags = splitTags(ctx.PostForm("tags"))

		data, name, err := p.readImageFile(ctx)
		switch {
		case err == nil:
			imageData, imageName = data, name
		case errors.Is(err, errNoImage):
			// no attachment
		case errors.Is(err, errInvalidImageType):
			utils.Error(ctx, http.StatusBadRequest, 40024, "invalid image type")
			return
		case errors.Is(err, errImageTooLarge):
			utils.Error(ctx, http.StatusBadRequest, 40025, "file too large")
			return
		default:
			utils.Error(ctx, http.StatusBadRequest, 40026, "failed to read image")
			return
		}
	}

	title = strings.TrimSpace(utils.Sanitize(title))
	body = strings.TrimSpace(utils.Sanitize(body))
	if title == "" || body == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title and body are required")
		return
	}

	var imageMeta *models.ImageMeta
	if imageData != nil {
		meta, err := p.images.Upload(ctx.Request.Context(), imageData, imageName)
		if err != nil {
			utils.Sugar.Errorf("image upload failed: %v", err)
			utils.Error(ctx, http.StatusInternalServerError, 50020, "upload error")
			return
		}
		imageMeta = meta
	}

	post := models.Post{
		AuthorID: userID,
		Title:    title,
		Body:     body,
		Tags:     tags,
		Image:    imageMeta,
	}

	if err := p.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to create post")
		return
	}

	p.invalidatePostCaches(post.ID)
	p.hydratePosts(ctx, []*models.Post{&post})

	utils.Respond(ctx, http.StatusCreated, 0, "post created", gin.H{"post": post})
}

// ListPosts returns paginated posts sorted by recency, hydrated with likes
// and author info. Anonymous responses are cached; viewer-specific ones are
// computed per request.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("per_page"))
	authorFilter := strings.TrimSpace(ctx.Query("author_id"))
	_, viewerKnown := getUserID(ctx)

	cacheKey := ""
	if !viewerKnown && authorFilter == "" {
		cacheKey = fmt.Sprintf("cache:posts:list:page=%d:size=%d", page, pageSize)
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	query := p.db.Model(&models.Post{})
	if authorFilter != "" {
		query = query.Where("author_id = ?", authorFilter)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to count posts")
		return
	}

	var posts []*models.Post
	if err := query.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to list posts")
		return
	}

	p.hydratePosts(ctx, posts)

	payload := gin.H{
		"items": posts,
		"pagination": gin.H{
			"page":        page,
			"per_page":    pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	if cacheKey != "" {
		utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	}
	utils.Success(ctx, payload)
}

// GetPost returns a single post. Malformed ids read as not found, never 500.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID, ok := parseID(ctx.Param("id"))
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
		return
	}
	_, viewerKnown := getUserID(ctx)

	cacheKey := ""
	if !viewerKnown {
		cacheKey = fmt.Sprintf("cache:post:detail:%d", postID)
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return
	}

	p.hydratePosts(ctx, []*models.Post{&post})

	payload := gin.H{"post": post}
	if cacheKey != "" {
		utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	}
	utils.Success(ctx, payload)
}

// UpdatePost applies a partial update to the author's own post. Only fields
// present in the request are touched; a present-but-empty title or body fails
// validation without writing anything. Image replacement uploads the new
// object first; the old object is removed best-effort after the DB write.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "unauthorized")
		return
	}
	postID, idOK := parseID(ctx.Param("id"))
	if !idOK {
		utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
		return
	}

	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to load post")
		return
	}
	if post.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40301, "you can only update your own posts")
		return
	}

	updates := map[string]interface{}{}
	oldProviderID := ""
	if post.Image != nil {
		oldProviderID = post.Image.ProviderID
	}
	removeOldImage := false

	if isJSONRequest(ctx) {
		var req struct {
			Title *string         `json:"title"`
			Body  *string         `json:"body"`
			Tags  *[]string       `json:"tags"`
			Image json.RawMessage `json:"image"`
		}
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40027, "invalid request payload")
			return
		}
		if req.Title != nil {
			updates["title"] = strings.TrimSpace(utils.Sanitize(*req.Title))
		}
		if req.Body != nil {
			updates["body"] = strings.TrimSpace(utils.Sanitize(*req.Body))
		}
		if req.Tags != nil {
			updates["tags"] = models.StringList(*req.Tags)
		}
		// Explicit image removal: field present with null value. Clearing an
		// already-absent image is a no-op and must not bump updated_at.
		if len(req.Image) > 0 && string(req.Image) == "null" && post.Image != nil {
			updates["image"] = nil
			removeOldImage = oldProviderID != ""
		}
	} else {
		if title, present := ctx.GetPostForm("title"); present {
			updates["title"] = strings.TrimSpace(utils.Sanitize(title))
		}
		if body, present := ctx.GetPostForm("body"); present {
			updates["body"] = strings.TrimSpace(utils.Sanitize(body))
		}
		if tags, present := ctx.GetPostForm("tags"); present {
			updates["tags"] = splitTags(tags)
		}

		data, name, err := p.readImageFile(ctx)
		switch {
		case err == nil:
			meta, upErr := p.images.Upload(ctx.Request.Context(), data, name)
			if upErr != nil {
				utils.Sugar.Errorf("image upload failed: %v", upErr)
				utils.Error(ctx, http.StatusInternalServerError, 50026, "upload error")
				return
			}
			updates["image"] = meta
			removeOldImage = oldProviderID != ""
		case errors.Is(err, errNoImage):
			// nothing attached
		case errors.Is(err, errInvalidImageType):
			utils.Error(ctx, http.StatusBadRequest, 40024, "invalid image type")
			return
		case errors.Is(err, errImageTooLarge):
			utils.Error(ctx, http.StatusBadRequest, 40025, "file too large")
			return
		default:
			utils.Error(ctx, http.StatusBadRequest, 40026, "failed to read image")
			return
		}
	}

	// Validation happens before any write: a failed update leaves the post untouched.
	if v, present := updates["title"]; present && v.(string) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40028, "title cannot be empty")
		return
	}
	if v, present := updates["body"]; present && v.(string) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40029, "body cannot be empty")
		return
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := p.db.Model(&post).Updates(updates).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to update post")
			return
		}
	}

	// DB state is authoritative; old-object cleanup failure is logged only.
	if removeOldImage {
		if err := p.images.Delete(ctx.Request.Context(), oldProviderID); err != nil {
			utils.Sugar.Warnf("failed to delete old image %s: %v", oldProviderID, err)
		}
	}

	p.invalidatePostCaches(post.ID)

	var updated models.Post
	if err := p.db.First(&updated, postID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to reload post")
		return
	}
	p.hydratePosts(ctx, []*models.Post{&updated})
	utils.Success(ctx, gin.H{"post": updated})
}

// DeletePost removes the author's own post. The DB record goes first; the
// stored image is removed best-effort afterwards so a failure can only orphan
// an object, never dangle a reference. Comments are intentionally left in
// place.
func (p *PostController) DeletePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}
	postID, idOK := parseID(ctx.Param("id"))
	if !idOK {
		utils.Error(ctx, http.StatusNotFound, 40404, "post not found")
		return
	}

	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40404, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to load post")
		return
	}
	if post.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only delete your own posts")
		return
	}

	if err := p.db.Delete(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to delete post")
		return
	}

	if post.Image != nil && post.Image.ProviderID != "" {
		if err := p.images.Delete(ctx.Request.Context(), post.Image.ProviderID); err != nil {
			utils.Sugar.Warnf("failed to delete image %s: %v", post.Image.ProviderID, err)
		}
	}

	p.invalidatePostCaches(post.ID)
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// ToggleLike flips the caller's membership in the post's like set. The
// delete/insert are single atomic statements against the unique
// (user_id, post_id) index, and the reported count is read back from the
// store rather than guessed.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}
	postID, idOK := parseID(ctx.Param("id"))
	if !idOK {
		utils.Error(ctx, http.StatusNotFound, 40405, "post not found")
		return
	}

	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40405, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to load post")
		return
	}

	res := p.db.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to toggle like")
		return
	}

	liked := false
	if res.RowsAffected == 0 {
		// Not present: add. ON CONFLICT DO NOTHING keeps this a set under
		// concurrent retries by the same user.
		like := models.Like{UserID: userID, PostID: postID}
		if err := p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to toggle like")
			return
		}
		liked = true
	}

	var count int64
	if err := p.db.Model(&models.Like{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to count likes")
		return
	}

	p.invalidatePostCaches(postID)
	utils.Success(ctx, gin.H{"liked": liked, "likes_count": count})
}

// CreateComment allows authenticated users to comment on posts.
func (p *PostController) CreateComment(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40114, "unauthorized")
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	body := strings.TrimSpace(utils.Sanitize(req.Body))
	if body == "" {
		utils.Error(ctx, http.StatusBadRequest, 40031, "comment body cannot be empty")
		return
	}

	postID, idOK := parseID(ctx.Param("id"))
	if !idOK {
		utils.Error(ctx, http.StatusNotFound, 40406, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40406, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to load post")
		return
	}

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: userID,
		Body:     body,
	}
	if err := p.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50035, "failed to create comment")
		return
	}

	p.hydrateComments([]*models.Comment{&comment})
	p.invalidatePostCaches(post.ID)

	utils.Respond(ctx, http.StatusCreated, 0, "comment created", gin.H{"comment": comment})
}

// ListComments returns a post's comments sorted by recency, each hydrated
// with the author's username.
func (p *PostController) ListComments(ctx *gin.Context) {
	postID, idOK := parseID(ctx.Param("id"))
	if !idOK {
		utils.Error(ctx, http.StatusNotFound, 40407, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40407, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50036, "failed to load post")
		return
	}

	var comments []*models.Comment
	if err := p.db.Where("post_id = ?", postID).Order("created_at DESC").Find(&comments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50037, "failed to list comments")
		return
	}

	p.hydrateComments(comments)
	utils.Success(ctx, gin.H{"comments": comments})
}

// DeleteComment allows the comment's author to delete it. A comment id that
// exists under a different post reads as not found.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40115, "unauthorized")
		return
	}
	postID, postOK := parseID(ctx.Param("id"))
	commentID, commentOK := parseID(ctx.Param("commentId"))
	if !postOK || !commentOK {
		utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
		return
	}

	var comment models.Comment
	if err := p.db.First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50038, "failed to load comment")
		return
	}
	if comment.PostID != postID {
		utils.Error(ctx, http.StatusNotFound, 40420, "comment not found")
		return
	}
	if comment.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, 40320, "you can only delete your own comment")
		return
	}

	if err := p.db.Delete(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50039, "failed to delete comment")
		return
	}

	p.invalidatePostCaches(postID)
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}

// SearchTop returns the top matches for a query. Primary strategy is the
// MySQL FULLTEXT index with relevance scores; when that is unavailable the
// search transparently falls back to case-insensitive substring matching
// ordered by recency, and when both fail the caller still gets an empty
// result set rather than an error.
func (p *PostController) SearchTop(ctx *gin.Context) {
	q := strings.TrimSpace(ctx.Query("q"))
	if q == "" {
		utils.Success(ctx, gin.H{"results": []models.SearchResult{}})
		return
	}

	limit := searchLimitNormal
	if v, err := strconv.Atoi(ctx.Query("limit")); err == nil {
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if limit > searchLimitMax {
		limit = searchLimitMax
	}

	results, err := p.searchFulltext(q, limit)
	if err != nil {
		utils.Sugar.Infof("text search failed, falling back to substring search: %v", err)
		results, err = p.searchSubstring(q, limit)
		if err != nil {
			utils.Sugar.Errorf("search fallback failed: %v", err)
			results = []models.SearchResult{}
		}
	}

	utils.Success(ctx, gin.H{"results": results})
}

type searchRow struct {
	ID        uint
	Title     string
	Body      string
	AuthorID  uint
	ImageRaw  *string `gorm:"column:image"`
	CreatedAt time.Time
	Score     float64
}

func (r searchRow) toResult(score *float64) models.SearchResult {
	var image *models.ImageMeta
	if r.ImageRaw != nil && *r.ImageRaw != "" && *r.ImageRaw != "null" {
		var m models.ImageMeta
		if err := json.Unmarshal([]byte(*r.ImageRaw), &m); err == nil {
			image = &m
		}
	}
	return models.SearchResult{
		ID:          r.ID,
		Title:       r.Title,
		BodySnippet: snippet(r.Body),
		AuthorID:    r.AuthorID,
		Image:       image,
		Score:       score,
		CreatedAt:   r.CreatedAt,
	}
}

func (p *PostController) searchFulltext(q string, limit int) ([]models.SearchResult, error) {
	var rows []searchRow
	err := p.db.Raw(`SELECT id, title, body, author_id, image, created_at,
		MATCH(title, body, tags) AGAINST (? IN NATURAL LANGUAGE MODE) AS score
		FROM posts
		WHERE MATCH(title, body, tags) AGAINST (? IN NATURAL LANGUAGE MODE)
		ORDER BY score DESC, created_at DESC
		LIMIT ?`, q, q, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		score := r.Score
		results = append(results, r.toResult(&score))
	}
	return results, nil
}

func (p *PostController) searchSubstring(q string, limit int) ([]models.SearchResult, error) {
	like := "%" + strings.ToLower(q) + "%"
	var rows []searchRow
	err := p.db.Model(&models.Post{}).
		Select("id, title, body, author_id, image, created_at, 0 AS score").
		Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ? OR LOWER(tags) LIKE ?", like, like, like).
		Order("created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.toResult(nil))
	}
	return results, nil
}

// hydratePosts fills the computed fields on each post: likes_count, is_liked
// for the current viewer, and a minimal author projection. A missing author
// row hydrates as "Unknown" rather than failing the read.
func (p *PostController) hydratePosts(ctx *gin.Context, posts []*models.Post) {
	if len(posts) == 0 {
		return
	}

	postIDs := make([]uint, 0, len(posts))
	authorIDs := make([]uint, 0, len(posts))
	for _, post := range posts {
		postIDs = append(postIDs, post.ID)
		authorIDs = append(authorIDs, post.AuthorID)
	}

	type likeCount struct {
		PostID uint
		Total  int64
	}
	var counts []likeCount
	if err := p.db.Model(&models.Like{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&counts).Error; err != nil {
		utils.Sugar.Warnf("failed to load like counts: %v", err)
	}
	countByPost := make(map[uint]int64, len(counts))
	for _, c := range counts {
		countByPost[c.PostID] = c.Total
	}

	likedByViewer := map[uint]bool{}
	if viewerID, ok := getUserID(ctx); ok {
		var likedIDs []uint
		if err := p.db.Model(&models.Like{}).
			Where("user_id = ? AND post_id IN ?", viewerID, postIDs).
			Pluck("post_id", &likedIDs).Error; err != nil {
			utils.Sugar.Warnf("failed to load viewer likes: %v", err)
		}
		for _, id := range likedIDs {
			likedByViewer[id] = true
		}
	}

	var authors []models.User
	if err := p.db.Find(&authors, utils.UniqueUint(authorIDs)).Error; err != nil {
		utils.Sugar.Warnf("failed to load post authors: %v", err)
	}
	authorByID := make(map[uint]models.User, len(authors))
	for _, u := range authors {
		authorByID[u.ID] = u
	}

	for _, post := range posts {
		post.LikesCount = countByPost[post.ID]
		post.IsLiked = likedByViewer[post.ID]
		if u, ok := authorByID[post.AuthorID]; ok {
			post.Author = &models.AuthorRef{ID: u.ID, Username: u.Username}
		} else {
			post.Author = &models.AuthorRef{ID: post.AuthorID, Username: "Unknown"}
		}
	}
}

// hydrateComments attaches author projections to comments, with the same
// "Unknown" fallback as posts.
func (p *PostController) hydrateComments(comments []*models.Comment) {
	if len(comments) == 0 {
		return
	}

	authorIDs := make([]uint, 0, len(comments))
	for _, c := range comments {
		authorIDs = append(authorIDs, c.AuthorID)
	}

	var authors []models.User
	if err := p.db.Find(&authors, utils.UniqueUint(authorIDs)).Error; err != nil {
		utils.Sugar.Warnf("failed to load comment authors: %v", err)
	}
	authorByID := make(map[uint]models.User, len(authors))
	for _, u := range authors {
		authorByID[u.ID] = u
	}

	for _, c := range comments {
		if u, ok := authorByID[c.AuthorID]; ok {
			c.Author = &models.AuthorRef{ID: u.ID, Username: u.Username}
		} else {
			c.Author = &models.AuthorRef{ID: c.AuthorID, Username: "Unknown"}
		}
	}
}

// readImageFile extracts and validates the multipart image attachment.
// Returns errNoImage when the field is absent.
func (p *PostController) readImageFile(ctx *gin.Context) ([]byte, string, error) {
	file, header, err := ctx.Request.FormFile("image")
	if err != nil {
		return nil, "", errNoImage
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !allowedImageExt[ext] {
		return nil, "", errInvalidImageType
	}

	maxBytes := config.Get().MaxImageBytes
	if header.Size > maxBytes {
		return nil, "", errImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", errImageTooLarge
	}

	return data, header.Filename, nil
}

func (p *PostController) invalidatePostCaches(postID uint) {
	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix(fmt.Sprintf("cache:post:detail:%d", postID))
}

func isJSONRequest(ctx *gin.Context) bool {
	return strings.HasPrefix(ctx.ContentType(), "application/json")
}

func splitTags(raw string) models.StringList {
	tags := models.StringList{}
	for _, t := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 {
		pageSize = s
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// snippet returns the first 180 characters of body, trimmed back to the last
// whole word when the cut lands mid-word.
func snippet(body string) string {
	runes := []rune(body)
	if len(runes) <= snippetLength {
		return body
	}
	cut := string(runes[:snippetLength])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
