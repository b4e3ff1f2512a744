package repository

import (
	"errors"

	"callcast/internal/models"

	"gorm.io/gorm"
)

type TweetRepository struct {
	db *gorm.DB
}

func NewTweetRepository(db *gorm.DB) *TweetRepository {
	return &TweetRepository{db: db}
}

func (r *TweetRepository) Create(t *models.Tweet) error {
	return r.db.Omit("User").Create(t).Error
}

func (r *TweetRepository) GetByID(id uint) (*models.Tweet, error) {
	var t models.Tweet
	if err := r.db.Preload("User").First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes the tweet only when userID wrote it.
func (r *TweetRepository) Delete(id, userID uint) (bool, error) {
	var deleted bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Tweet{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected == 1
		if !deleted {
			return nil
		}
		return tx.Where("tweet_id = ?", id).Delete(&models.FavoriteTweet{}).Error
	})
	return deleted, err
}

// List pages tweets newest first; authorID 0 lists everyone. Likes and
// IsLike are filled for viewerID.
func (r *TweetRepository) List(authorID, viewerID uint, page, limit int) ([]models.Tweet, int64, error) {
	tx := r.db.Model(&models.Tweet{})
	if authorID > 0 {
		tx = tx.Where("user_id = ?", authorID)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Tweet
	if err := tx.Preload("User").Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	if len(list) == 0 {
		return list, total, nil
	}
	ids := make([]uint, len(list))
	for i, t := range list {
		ids[i] = t.ID
	}
	type likeRow struct {
		TweetID uint
		N       int64
	}
	var likes []likeRow
	if err := r.db.Model(&models.FavoriteTweet{}).Select("tweet_id, COUNT(*) AS n").
		Where("tweet_id IN ?", ids).Group("tweet_id").Scan(&likes).Error; err != nil {
		return nil, 0, err
	}
	var mine []uint
	if err := r.db.Model(&models.FavoriteTweet{}).Where("tweet_id IN ? AND liker_id = ?", ids, viewerID).
		Pluck("tweet_id", &mine).Error; err != nil {
		return nil, 0, err
	}
	counts := make(map[uint]int64, len(likes))
	for _, l := range likes {
		counts[l.TweetID] = l.N
	}
	liked := make(map[uint]bool, len(mine))
	for _, id := range mine {
		liked[id] = true
	}
	for i := range list {
		list[i].Likes = counts[list[i].ID]
		list[i].IsLike = liked[list[i].ID]
	}
	return list, total, nil
}

// ToggleLike likes or unlikes and reports whether the tweet is now liked.
func (r *TweetRepository) ToggleLike(tweetID, likerID uint) (bool, error) {
	var fav models.FavoriteTweet
	err := r.db.Where("tweet_id = ? AND liker_id = ?", tweetID, likerID).First(&fav).Error
	if err == nil {
		return false, r.db.Delete(&fav).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return true, r.db.Create(&models.FavoriteTweet{TweetID: tweetID, LikerID: likerID}).Error
}

func (r *TweetRepository) Likers(tweetID uint) ([]models.Member, error) {
	var list []models.Member
	err := r.db.Joins("JOIN favorite_tweets ON favorite_tweets.liker_id = members.id").
		Where("favorite_tweets.tweet_id = ?", tweetID).Order("favorite_tweets.id ASC").Find(&list).Error
	return list, err
}

func (r *TweetRepository) CountByUser(userID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.Tweet{}).Where("user_id = ?", userID).Count(&c).Error
	return c, err
}
