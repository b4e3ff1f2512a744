package service

import (
	"context"
	"io"
	"testing"
	"time"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMedia struct {
	deleted []string
}

func (m *fakeMedia) UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (string, string, error) {
	return "https://res.example.com/" + folder + "/" + publicID + ".jpg", "", nil
}

func (m *fakeMedia) UploadVideo(ctx context.Context, file io.Reader, folder, publicID string) (string, string, error) {
	return "https://res.example.com/" + folder + "/" + publicID + ".mp4", "", nil
}

func (m *fakeMedia) DeleteByURL(ctx context.Context, url string) error {
	m.deleted = append(m.deleted, url)
	return nil
}

func TestInitialRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := f.member(domain.RoleGuest, func(m *models.Member) {
		m.IsRegistered = false
		m.Nickname = nil
	})
	taken := f.guest(0)
	in := InitialRegisterInput{Nickname: *taken.Nickname, Birthday: time.Date(1995, 4, 1, 0, 0, 0, 0, time.UTC)}

	_, err := f.members.InitialRegister(ctx, fresh.ID, in)
	assert.ErrorIs(t, err, ErrNicknameTaken)

	in.Nickname = "hana"
	in.Avatars = []string{"https://img/1.jpg", "https://img/2.jpg"}
	m, err := f.members.InitialRegister(ctx, fresh.ID, in)
	require.NoError(t, err)
	assert.True(t, m.IsRegistered)
	assert.Equal(t, "hana", m.DisplayName())
	require.Len(t, m.Avatars, 2)
	assert.Equal(t, 1, f.broker.count(fresh.ID, domain.EventUser, ""))

	_, err = f.members.InitialRegister(ctx, fresh.ID, in)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestUpdateProfileOnlyTouchesGivenFields(t *testing.T) {
	f := newFixture(t)
	m := f.member(domain.RoleCast, func(m *models.Member) { m.About = "hello" })
	word := "nice to meet you"

	got, err := f.members.UpdateProfile(context.Background(), m.ID, ProfileInput{Word: &word})
	require.NoError(t, err)
	assert.Equal(t, word, got.Word)
	assert.Equal(t, "hello", got.About)

	other := *f.guest(0).Nickname
	_, err = f.members.UpdateProfile(context.Background(), m.ID, ProfileInput{Nickname: &other})
	assert.ErrorIs(t, err, ErrNicknameTaken)
	_, err = f.members.UpdateProfile(context.Background(), 999, ProfileInput{})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestAvatarsReorderAndDelete(t *testing.T) {
	f := newFixture(t)
	media := &fakeMedia{}
	f.members = NewMemberService(f.db, media, f.chat, f.notify)
	m := f.cast(nil)

	a, err := f.members.AddAvatar(m.ID, "https://img/a.jpg")
	require.NoError(t, err)
	b, err := f.members.AddAvatar(m.ID, "https://img/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Order)

	list, err := f.members.ReorderAvatars(m.ID, []uint{b.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	_, err = f.members.ReorderAvatars(m.ID, []uint{999})
	assert.ErrorIs(t, err, ErrAvatarNotFound)

	require.NoError(t, f.members.DeleteAvatar(context.Background(), m.ID, a.ID))
	assert.Equal(t, []string{"https://img/a.jpg"}, media.deleted)
	assert.ErrorIs(t, f.members.DeleteAvatar(context.Background(), m.ID, a.ID), ErrAvatarNotFound)
}

func TestSettingsAreCreatedOnDemand(t *testing.T) {
	f := newFixture(t)
	m := &models.Member{Username: "bare", Role: domain.RoleGuest, IsActive: true}
	require.NoError(t, f.db.Create(m).Error)

	st, err := f.members.GetSetting(m.ID)
	require.NoError(t, err)
	assert.True(t, st.AppFootprint)

	in := *st
	in.AppFootprint = false
	_, err = f.members.UpdateSetting(m.ID, in)
	require.NoError(t, err)
	st, err = f.members.GetSetting(m.ID)
	require.NoError(t, err)
	assert.False(t, st.AppFootprint)
}

func TestPresenceIsAnnouncedAndExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cast := f.cast(nil)
	online := f.member(domain.RoleGuest, func(m *models.Member) { m.Status = true })
	offline := f.guest(0)

	_, err := f.members.SetPresent(ctx, online.ID, true)
	assert.ErrorIs(t, err, ErrPresentOnlyForCast)

	m, err := f.members.SetPresent(ctx, cast.ID, true)
	require.NoError(t, err)
	assert.True(t, m.IsPresent)
	assert.Equal(t, 1, f.broker.count(online.ID, domain.EventPresent, ""))
	assert.Zero(t, f.broker.count(offline.ID, domain.EventPresent, ""))

	f.advance(2 * time.Hour)
	n, err := f.members.ExpirePresence(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(2 * time.Hour)
	n, err = f.members.ExpirePresence(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.reload(cast).IsPresent)
	assert.Equal(t, 2, f.broker.count(online.ID, domain.EventPresent, ""))
}

func TestFollowAndFootprints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(0)
	cast := f.cast(nil)
	shy := f.cast(nil)
	require.NoError(t, f.db.Model(&models.Setting{}).Where("id = ?", *shy.SettingID).Update("app_footprint", false).Error)

	assert.ErrorIs(t, f.members.Follow(ctx, guest.ID, guest.ID), ErrCannotFollowSelf)
	require.NoError(t, f.members.Follow(ctx, guest.ID, cast.ID))
	require.NoError(t, f.members.Follow(ctx, guest.ID, cast.ID))

	favs, err := f.members.Favorites(guest.ID)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	followers, err := f.members.Followers(cast.ID)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, guest.ID, followers[0].ID)

	_, err = f.members.ViewProfile(ctx, guest.ID, cast.ID)
	require.NoError(t, err)
	_, err = f.members.ViewProfile(ctx, guest.ID, shy.ID)
	require.NoError(t, err)
	_, err = f.members.ViewProfile(ctx, cast.ID, cast.ID)
	require.NoError(t, err)

	notices, total, err := f.chat.Notices(cast.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "two follow notices and one footprint")
	types := map[string]int{}
	for _, n := range notices {
		types[n.NoticeType]++
	}
	assert.Equal(t, map[string]int{domain.NoticeFollow: 2, domain.NoticeFoot: 1}, types)
	_, total, err = f.chat.Notices(shy.ID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, f.members.Unfollow(guest.ID, cast.ID))
	favs, err = f.members.Favorites(guest.ID)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestReviewAfterPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guest := f.guest(100000)
	cast := f.cast(nil)
	o := f.confirmedOrder(guest, cast, f.plan(5000, 3000))
	in := ReviewInput{OrderID: o.ID, TargetID: cast.ID, Stars: 4, Content: "lovely evening"}

	_, err := f.members.Review(guest.ID, in)
	assert.ErrorIs(t, err, ErrReviewNotAllowed, "not finished yet")

	_, err = f.calls.StartMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)
	f.advance(time.Hour)
	_, err = f.calls.EndMeeting(ctx, cast.ID, o.ID)
	require.NoError(t, err)

	_, err = f.members.Review(guest.ID, ReviewInput{OrderID: o.ID, TargetID: cast.ID, Stars: 6})
	assert.ErrorIs(t, err, ErrInvalidStars)
	_, err = f.members.Review(guest.ID, ReviewInput{OrderID: o.ID, TargetID: f.cast(nil).ID, Stars: 3})
	assert.ErrorIs(t, err, ErrReviewNotAllowed)

	rv, err := f.members.Review(guest.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 4, rv.Stars)
	_, err = f.members.Review(guest.ID, in)
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	view, err := f.members.ViewProfile(ctx, guest.ID, cast.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, view.Stars, 0.001)
	list, total, err := f.members.Reviews(cast.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.NotNil(t, list[0].Source)
	assert.Equal(t, guest.ID, list[0].Source.ID)
}

func TestAdminUpdateAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokyo := f.location("Tokyo")
	cast := f.cast(&tokyo.ID)
	f.cast(nil)
	ratio, memo := 60, "vip"

	m, err := f.members.AdminUpdate(ctx, cast.ID, AdminMemberInput{BackRatio: &ratio, Memo: &memo})
	require.NoError(t, err)
	assert.Equal(t, 60, m.BackRatio)
	assert.Equal(t, "vip", m.Memo)

	list, total, err := f.members.SearchCasts(repository.CastSearch{LocationID: tokyo.ID}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, cast.ID, list[0].ID)

	m, err = f.members.RegisterCard(ctx, cast.ID, "tok_visa")
	require.NoError(t, err)
	assert.True(t, m.CardRegistered)
}
