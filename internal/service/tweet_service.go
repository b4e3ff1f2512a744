package service

import (
	"context"
	"errors"
	"strings"

	"callcast/internal/domain"
	"callcast/internal/models"
	"callcast/internal/repository"
	"callcast/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrTweetNotFound = errors.New("tweet not found")
	ErrEmptyTweet    = errors.New("tweet is empty")
)

type TweetService struct {
	db   *gorm.DB
	chat *ChatService
	log  *logrus.Entry
}

func NewTweetService(db *gorm.DB, chat *ChatService) *TweetService {
	return &TweetService{db: db, chat: chat, log: logger.With("tweets")}
}

func (s *TweetService) Create(userID uint, content string, images []string) (*models.Tweet, error) {
	if strings.TrimSpace(content) == "" && len(images) == 0 {
		return nil, ErrEmptyTweet
	}
	t := &models.Tweet{UserID: userID, Content: content, Images: images}
	if err := repository.NewTweetRepository(s.db).Create(t); err != nil {
		return nil, err
	}
	return repository.NewTweetRepository(s.db).GetByID(t.ID)
}

// List pages tweets newest first; authorID 0 lists everyone's.
func (s *TweetService) List(authorID, viewerID uint, page int) ([]models.Tweet, int64, error) {
	return repository.NewTweetRepository(s.db).List(authorID, viewerID, page, domain.DefaultPageSize)
}

func (s *TweetService) Delete(id, userID uint) error {
	ok, err := repository.NewTweetRepository(s.db).Delete(id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTweetNotFound
	}
	return nil
}

// ToggleLike flips the viewer's like and returns who likes the tweet now.
func (s *TweetService) ToggleLike(ctx context.Context, tweetID, likerID uint) (bool, []models.Member, error) {
	tweets := repository.NewTweetRepository(s.db)
	t, err := tweets.GetByID(tweetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, ErrTweetNotFound
		}
		return false, nil, err
	}
	liked, err := tweets.ToggleLike(tweetID, likerID)
	if err != nil {
		return false, nil, err
	}
	likers, err := tweets.Likers(tweetID)
	if err != nil {
		return liked, nil, err
	}
	if liked && t.UserID != likerID {
		if _, err := s.chat.CreateNotice(ctx, t.UserID, likerID, domain.NoticeLike, ""); err != nil {
			s.log.WithError(err).Warn("[Tweets] like notice")
		}
	}
	return liked, likers, nil
}

func (s *TweetService) Count(userID uint) (int64, error) {
	return repository.NewTweetRepository(s.db).CountByUser(userID)
}
