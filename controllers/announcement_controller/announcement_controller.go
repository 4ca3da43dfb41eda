package announcement_controller

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joy095/frame-booking/controllers/notification_controller"
	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/announcement_models"
	"github.com/joy095/frame-booking/utils"
)

const adminKeyHeader = "X-Admin-Key"

// AnnouncementStore is the slice of the announcement store the controller
// consumes.
type AnnouncementStore interface {
	Create(ctx context.Context, title, text string, castURL *string) (*announcement_models.Announcement, error)
	ListLatest(ctx context.Context, limit int) ([]*announcement_models.Announcement, error)
}

// SeenTracker records per-user announcement read progress.
type SeenTracker interface {
	GetLastSeenAnnouncement(ctx context.Context, fid int64) (int64, error)
	SetLastSeenAnnouncement(ctx context.Context, fid int64, announcementID int64) error
}

// FIDLister enumerates users reachable for a broadcast.
type FIDLister interface {
	ListFIDsWithValidTokens(ctx context.Context) ([]int64, error)
}

// Notifier pushes the broadcast to each user.
type Notifier interface {
	Send(ctx context.Context, fid int64, n notification_controller.Notification, skipRateLimit bool) error
}

// AnnouncementController serves announcement reads and the admin-only
// create-and-broadcast operation.
type AnnouncementController struct {
	Announcements AnnouncementStore
	Seen          SeenTracker
	FIDs          FIDLister
	Notifier      Notifier
	AdminKey      string
	AppURL        string
}

func NewAnnouncementController(store AnnouncementStore, seen SeenTracker, fids FIDLister, notifier Notifier, adminKey, appURL string) *AnnouncementController {
	return &AnnouncementController{
		Announcements: store,
		Seen:          seen,
		FIDs:          fids,
		Notifier:      notifier,
		AdminKey:      adminKey,
		AppURL:        appURL,
	}
}

// List handles GET /api/announcements?limit=n.
func (ac *AnnouncementController) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))

	announcements, err := ac.Announcements.ListLatest(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list announcements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": announcements})
}

// LastSeen handles GET /api/announcements/last-seen for the authenticated
// user.
func (ac *AnnouncementController) LastSeen(c *gin.Context) {
	fid, err := utils.GetFIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id, err := ac.Seen.GetLastSeenAnnouncement(c.Request.Context(), fid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read last seen announcement"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_seen_id": id})
}

type markSeenRequest struct {
	AnnouncementID int64 `json:"announcement_id" binding:"required"`
}

// MarkSeen handles PUT /api/announcements/last-seen.
func (ac *AnnouncementController) MarkSeen(c *gin.Context) {
	fid, err := utils.GetFIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req markSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "announcement_id is required"})
		return
	}

	if err := ac.Seen.SetLastSeenAnnouncement(c.Request.Context(), fid, req.AnnouncementID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record last seen announcement"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type createAnnouncementRequest struct {
	Title   string  `json:"title" binding:"required,max=32"`
	Text    string  `json:"text" binding:"required,max=128"`
	CastURL *string `json:"cast_url" binding:"omitempty,url"`
}

// Create handles POST /api/announcements. Guarded by a shared admin key;
// after persisting, the announcement is pushed to every user with a valid
// token, honoring each user's notification quota.
func (ac *AnnouncementController) Create(c *gin.Context) {
	key := c.GetHeader(adminKeyHeader)
	if ac.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(ac.AdminKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req createAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid announcement", "details": err.Error()})
		return
	}

	a, err := ac.Announcements.Create(c.Request.Context(), req.Title, req.Text, req.CastURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create announcement"})
		return
	}

	// The broadcast outlives the request; don't tie it to the request
	// context.
	go ac.broadcast(context.Background(), a)

	c.JSON(http.StatusCreated, gin.H{"announcement": a})
}

// broadcast pushes the announcement to every reachable user. Rate-limited
// users are skipped, not overridden: announcements never burn a user's
// quota headroom for booking notifications.
func (ac *AnnouncementController) broadcast(ctx context.Context, a *announcement_models.Announcement) {
	fids, err := ac.FIDs.ListFIDsWithValidTokens(ctx)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list fids for announcement %d: %v", a.ID, err)
		return
	}

	sent := 0
	for _, fid := range fids {
		err := ac.Notifier.Send(ctx, fid, notification_controller.Notification{
			ID:        fmt.Sprintf("announcement:%d", a.ID),
			Title:     a.Title,
			Body:      a.Text,
			TargetURL: ac.AppURL,
		}, false)
		if err != nil {
			logger.WarnLogger.Warnf("Announcement %d not delivered to fid %d: %v", a.ID, fid, err)
			continue
		}
		sent++
	}
	logger.InfoLogger.Infof("Announcement %d broadcast to %d/%d users", a.ID, sent, len(fids))
}
