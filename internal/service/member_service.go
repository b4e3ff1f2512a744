package service

import (
	"context"
	"errors"
	"time"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/cloudinary"
	"callcast/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrMemberNotFound     = errors.New("member not found")
	ErrNicknameTaken      = errors.New("nickname already taken")
	ErrAlreadyRegistered  = errors.New("profile already registered")
	ErrAvatarNotFound     = errors.New("avatar not found")
	ErrInvalidStars       = errors.New("stars must be between 1 and 5")
	ErrReviewNotAllowed   = errors.New("review not allowed for this order")
	ErrAlreadyReviewed    = errors.New("already reviewed")
	ErrCannotFollowSelf   = errors.New("cannot follow yourself")
	ErrPresentOnlyForCast = errors.New("only casts can set presence")
)

const msgFootprint = "足あとがつきました"

// MemberService covers profiles, presence and the social graph.
type MemberService struct {
	db     *gorm.DB
	media  cloudinary.Client
	chat   *ChatService
	notify *NotificationService
	now    func() time.Time
	log    *logrus.Entry
}

func NewMemberService(db *gorm.DB, media cloudinary.Client, chat *ChatService, notify *NotificationService) *MemberService {
	return &MemberService{db: db, media: media, chat: chat, notify: notify, now: time.Now, log: logger.With("members")}
}

func (s *MemberService) SetClock(now func() time.Time) { s.now = now }

func (s *MemberService) repo() *repository.MemberRepository { return repository.NewMemberRepository(s.db) }

func (s *MemberService) Get(id uint) (*models.Member, error) {
	m, err := s.repo().GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	return m, err
}

// InitialRegisterInput completes a new account's profile.
type InitialRegisterInput struct {
	Nickname   string    `json:"nickname" binding:"required"`
	Birthday   time.Time `json:"birthday" binding:"required"`
	LocationID *uint     `json:"location_id"`
	Avatars    []string  `json:"avatars"`
}

// InitialRegister sets the nickname and birthday once.
func (s *MemberService) InitialRegister(ctx context.Context, memberID uint, in InitialRegisterInput) (*models.Member, error) {
	m, err := s.Get(memberID)
	if err != nil {
		return nil, err
	}
	if m.IsRegistered {
		return nil, ErrAlreadyRegistered
	}
	if taken, err := s.repo().NicknameTaken(in.Nickname, memberID); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrNicknameTaken
	}
	fields := map[string]interface{}{"nickname": in.Nickname, "birthday": in.Birthday, "is_registered": true}
	if in.LocationID != nil {
		fields["location_id"] = *in.LocationID
	}
	if err := s.repo().UpdateFields(memberID, fields); err != nil {
		return nil, err
	}
	if len(in.Avatars) > 0 {
		if _, err := s.repo().ReplaceAvatars(memberID, in.Avatars); err != nil {
			return nil, err
		}
	}
	return s.refreshed(ctx, memberID)
}

// ProfileInput holds optional profile edits; nil fields are left unchanged.
type ProfileInput struct {
	Nickname   *string    `json:"nickname"`
	Birthday   *time.Time `json:"birthday"`
	Word       *string    `json:"word"`
	About      *string    `json:"about"`
	LocationID *uint      `json:"location_id"`
	LineID     *string    `json:"line_id"`
}

func (s *MemberService) UpdateProfile(ctx context.Context, memberID uint, in ProfileInput) (*models.Member, error) {
	if _, err := s.Get(memberID); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if in.Nickname != nil {
		taken, err := s.repo().NicknameTaken(*in.Nickname, memberID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrNicknameTaken
		}
		fields["nickname"] = *in.Nickname
	}
	if in.Birthday != nil {
		fields["birthday"] = *in.Birthday
	}
	if in.Word != nil {
		fields["word"] = *in.Word
	}
	if in.About != nil {
		fields["about"] = *in.About
	}
	if in.LocationID != nil {
		fields["location_id"] = *in.LocationID
	}
	if in.LineID != nil {
		fields["line_id"] = *in.LineID
	}
	if len(fields) > 0 {
		if err := s.repo().UpdateFields(memberID, fields); err != nil {
			return nil, err
		}
	}
	return s.refreshed(ctx, memberID)
}

func (s *MemberService) AddAvatar(memberID uint, uri string) (*models.Media, error) {
	return s.repo().AddAvatar(memberID, uri)
}

func (s *MemberService) ReplaceAvatars(memberID uint, uris []string) ([]models.Media, error) {
	return s.repo().ReplaceAvatars(memberID, uris)
}

// ReorderAvatars assigns positions in the order of ids.
func (s *MemberService) ReorderAvatars(memberID uint, ids []uint) ([]models.Media, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		members := repository.NewMemberRepository(tx)
		for i, id := range ids {
			m, err := members.GetAvatar(memberID, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAvatarNotFound
				}
				return err
			}
			m.Order = i
			if err := members.SaveAvatar(m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo().Avatars(memberID)
}

// DeleteAvatar removes the row and, when uploads are configured, the stored image.
func (s *MemberService) DeleteAvatar(ctx context.Context, memberID, mediaID uint) error {
	m, err := s.repo().GetAvatar(memberID, mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAvatarNotFound
		}
		return err
	}
	if err := s.repo().DeleteAvatar(m); err != nil {
		return err
	}
	if s.media != nil {
		if err := s.media.DeleteByURL(ctx, m.URI); err != nil {
			s.log.WithError(err).WithField("media_id", mediaID).Warn("[Members] delete uploaded avatar")
		}
	}
	return nil
}

// GetSetting returns the member's toggles, creating defaults when missing.
func (s *MemberService) GetSetting(memberID uint) (*models.Setting, error) {
	m, err := s.Get(memberID)
	if err != nil {
		return nil, err
	}
	if m.Setting != nil {
		return m.Setting, nil
	}
	st := models.DefaultSetting()
	if err := s.repo().CreateSetting(st); err != nil {
		return nil, err
	}
	if err := s.repo().UpdateFields(memberID, map[string]interface{}{"setting_id": st.ID}); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *MemberService) UpdateSetting(memberID uint, in models.Setting) (*models.Setting, error) {
	cur, err := s.GetSetting(memberID)
	if err != nil {
		return nil, err
	}
	in.ID = cur.ID
	in.CreatedAt = cur.CreatedAt
	if err := s.repo().SaveSetting(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *MemberService) SetFCMToken(memberID uint, token string) error {
	return s.repo().UpdateFields(memberID, map[string]interface{}{"fcm_token": token})
}

// RegisterCard stores the gateway card token used for purchases and auto-charge.
func (s *MemberService) RegisterCard(ctx context.Context, memberID uint, token string) (*models.Member, error) {
	fields := map[string]interface{}{"card_token": token, "card_registered": token != ""}
	if err := s.repo().UpdateFields(memberID, fields); err != nil {
		return nil, err
	}
	return s.refreshed(ctx, memberID)
}

func (s *MemberService) SearchCasts(q repository.CastSearch, page int) ([]models.Member, int64, error) {
	return s.repo().SearchCasts(q, page, domain.DefaultPageSize)
}

func (s *MemberService) SearchGuests(keyword string, page int) ([]models.Member, int64, error) {
	return s.repo().SearchGuests(keyword, page, domain.DefaultPageSize)
}

// SetPresent marks a cast available for the given hours and tells online guests.
func (s *MemberService) SetPresent(ctx context.Context, castID uint, present bool) (*models.Member, error) {
	m, err := s.Get(castID)
	if err != nil {
		return nil, err
	}
	if !m.IsCast() {
		return nil, ErrPresentOnlyForCast
	}
	fields := map[string]interface{}{"is_present": present}
	if present {
		fields["presented_at"] = s.now()
	}
	if err := s.repo().UpdateFields(castID, fields); err != nil {
		return nil, err
	}
	m, err = s.Get(castID)
	if err != nil {
		return nil, err
	}
	s.announcePresence(ctx, m)
	return m, nil
}

func (s *MemberService) announcePresence(ctx context.Context, cast *models.Member) {
	guests, err := s.repo().OnlineGuestIDs()
	if err != nil {
		s.log.WithError(err).Warn("[Members] load online guests")
		return
	}
	s.notify.SendPresent(ctx, guests, cast)
}

// ExpirePresence clears casts whose presence is older than the configured hours.
func (s *MemberService) ExpirePresence(ctx context.Context) (int, error) {
	hours := repository.NewSettingRepository(s.db).GetInt(models.SettingPresentHours, 3)
	casts, err := s.repo().PresentCasts()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	n := 0
	for i := range casts {
		c := &casts[i]
		if c.PresentedAt != nil && c.PresentedAt.After(cutoff) {
			continue
		}
		if err := s.repo().UpdateFields(c.ID, map[string]interface{}{"is_present": false}); err != nil {
			return n, err
		}
		c.IsPresent = false
		s.announcePresence(ctx, c)
		n++
	}
	return n, nil
}

// SetOnline tracks realtime connections.
func (s *MemberService) SetOnline(memberID uint, online bool) error {
	return s.repo().SetOnline(memberID, online, s.now())
}

func (s *MemberService) Follow(ctx context.Context, followerID, favoriteID uint) error {
	if followerID == favoriteID {
		return ErrCannotFollowSelf
	}
	if _, err := s.Get(favoriteID); err != nil {
		return err
	}
	if err := s.repo().Follow(followerID, favoriteID); err != nil {
		return err
	}
	if _, err := s.chat.CreateNotice(ctx, favoriteID, followerID, domain.NoticeFollow, ""); err != nil {
		s.log.WithError(err).Warn("[Members] follow notice")
	}
	return nil
}

func (s *MemberService) Unfollow(followerID, favoriteID uint) error {
	return s.repo().Unfollow(followerID, favoriteID)
}

func (s *MemberService) Favorites(memberID uint) ([]models.Member, error) {
	return s.repo().Favorites(memberID)
}

func (s *MemberService) Followers(memberID uint) ([]models.Member, error) {
	return s.repo().Followers(memberID)
}

// ProfileView is another member's public profile.
type ProfileView struct {
	*models.Member
	Stars float64 `json:"stars"`
}

// ViewProfile loads a member's profile and leaves a footprint notice when the
// viewed member allows it.
func (s *MemberService) ViewProfile(ctx context.Context, viewerID, memberID uint) (*ProfileView, error) {
	m, err := s.Get(memberID)
	if err != nil {
		return nil, err
	}
	view := &ProfileView{Member: m}
	if m.IsCast() {
		if view.Stars, err = s.repo().AverageStars(memberID); err != nil {
			return nil, err
		}
	}
	if viewerID != memberID && (m.Setting == nil || m.Setting.AppFootprint) {
		if _, err := s.chat.CreateNotice(ctx, memberID, viewerID, domain.NoticeFoot, msgFootprint); err != nil {
			s.log.WithError(err).Warn("[Members] footprint notice")
		}
	}
	return view, nil
}

// ReviewInput rates a cast the guest met.
type ReviewInput struct {
	OrderID  uint   `json:"order_id" binding:"required"`
	TargetID uint   `json:"target_id" binding:"required"`
	Stars    int    `json:"stars" binding:"required"`
	Content  string `json:"content"`
}

func (s *MemberService) Review(guestID uint, in ReviewInput) (*models.Review, error) {
	if in.Stars < domain.MinStars || in.Stars > domain.MaxStars {
		return nil, ErrInvalidStars
	}
	order, err := loadOrder(repository.NewOrderRepository(s.db), in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != guestID || (order.Status != domain.OrderPaid && order.Status != domain.OrderCompleted) {
		return nil, ErrReviewNotAllowed
	}
	if !containsID(joinUserIDs(order.Joins, true), in.TargetID) {
		return nil, ErrReviewNotAllowed
	}
	var n int64
	if err := s.db.Model(&models.Review{}).
		Where("order_id = ? AND source_id = ? AND target_id = ?", in.OrderID, guestID, in.TargetID).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrAlreadyReviewed
	}
	rv := &models.Review{OrderID: in.OrderID, SourceID: guestID, TargetID: in.TargetID, Stars: in.Stars, Content: in.Content}
	if err := s.repo().CreateReview(rv); err != nil {
		return nil, err
	}
	return rv, nil
}

func (s *MemberService) Reviews(targetID uint, page int) ([]models.Review, int64, error) {
	return s.repo().ReviewsFor(targetID, page, domain.DefaultPageSize)
}

func (s *MemberService) ListAdmins() ([]models.Member, error) {
	return s.repo().ListAdmins()
}

func (s *MemberService) ListMembers(all bool) ([]models.Member, error) {
	return s.repo().ListRegistered(all)
}

// AdminMemberInput is an operator edit of a member account.
type AdminMemberInput struct {
	Role        *int    `json:"role"`
	BackRatio   *int    `json:"back_ratio"`
	PointHalf   *int64  `json:"point_half"`
	CastClassID *uint   `json:"cast_class_id"`
	GuestLevel  *uint   `json:"guest_level_id"`
	Memo        *string `json:"memo"`
	IsActive    *bool   `json:"is_active"`
}

func (s *MemberService) AdminUpdate(ctx context.Context, memberID uint, in AdminMemberInput) (*models.Member, error) {
	if _, err := s.Get(memberID); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if in.Role != nil {
		fields["role"] = *in.Role
	}
	if in.BackRatio != nil {
		fields["back_ratio"] = *in.BackRatio
	}
	if in.PointHalf != nil {
		fields["point_half"] = *in.PointHalf
	}
	if in.CastClassID != nil {
		fields["cast_class_id"] = *in.CastClassID
	}
	if in.GuestLevel != nil {
		fields["guest_level_id"] = *in.GuestLevel
	}
	if in.Memo != nil {
		fields["memo"] = *in.Memo
	}
	if in.IsActive != nil {
		fields["is_active"] = *in.IsActive
	}
	if len(fields) > 0 {
		if err := s.repo().UpdateFields(memberID, fields); err != nil {
			return nil, err
		}
	}
	s.log.WithField("member_id", memberID).Info("[Members] updated by operator")
	return s.refreshed(ctx, memberID)
}

func (s *MemberService) refreshed(ctx context.Context, memberID uint) (*models.Member, error) {
	m, err := s.Get(memberID)
	if err != nil {
		return nil, err
	}
	s.notify.SendUser(ctx, m)
	return m, nil
}
