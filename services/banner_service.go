package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cardarena/tournament-engine/models"
	"github.com/cardarena/tournament-engine/repositories"
	"github.com/cardarena/tournament-engine/storage"
)

var bannerExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// BannerService stores tournament banner images in the object store and
// keeps the banner key on the tournament row in sync.
type BannerService struct {
	tournamentRepo repositories.TournamentRepository
	uploader       storage.FileUploader
	logger         *slog.Logger
}

func NewBannerService(
	tournamentRepo repositories.TournamentRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) *BannerService {
	return &BannerService{
		tournamentRepo: tournamentRepo,
		uploader:       uploader,
		logger:         logger,
	}
}

func (s *BannerService) UpdateBanner(ctx context.Context, tournamentID, actorID int, file io.Reader, contentType string) (*models.Tournament, error) {
	ext, ok := bannerExtensions[contentType]
	if !ok {
		return nil, ErrUnsupportedBannerType
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.CreatorID != actorID {
		return nil, ErrNotTournamentCreator
	}

	key := fmt.Sprintf("tournaments/%d/banner.%s", tournamentID, ext)
	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload banner: %w", err)
	}

	oldKey := tournament.BannerKey
	if err := s.tournamentRepo.UpdateBannerKey(ctx, tournamentID, &result.Key); err != nil {
		return nil, err
	}
	if oldKey != nil && *oldKey != result.Key {
		if err := s.uploader.Delete(ctx, *oldKey); err != nil {
			s.logger.Warn("failed to delete previous banner",
				slog.String("key", *oldKey), slog.Any("error", err))
		}
	}

	tournament.BannerKey = &result.Key
	tournament.BannerURL = &result.Location
	return tournament, nil
}

// ResolveBannerURL fills BannerURL from the stored key, if any.
func (s *BannerService) ResolveBannerURL(t *models.Tournament) {
	if t == nil || t.BannerKey == nil {
		return
	}
	url := s.uploader.GetPublicURL(*t.BannerKey)
	if url != "" {
		t.BannerURL = &url
	}
}
