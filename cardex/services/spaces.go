package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SpacesService stores card artwork in an S3-compatible Spaces bucket and
// builds the public URLs served to clients.
type SpacesService struct {
	client   *s3.Client
	bucket   string
	region   string
	CardRoot string
}

func NewSpacesService(spacesKey, spacesSecret, region, bucket, cardRoot string) (*SpacesService, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load Spaces config: %w", err)
	}

	return &SpacesService{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		region:   region,
		CardRoot: strings.TrimPrefix(cardRoot, "/"),
	}, nil
}

// CardImageURL builds the public URL for a card's artwork.
func (s *SpacesService) CardImageURL(cardID string) string {
	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s",
		s.bucket, s.region, s.cardImageKey(cardID))
}

// CardImageExists checks whether artwork has been uploaded for a card.
func (s *SpacesService) CardImageExists(ctx context.Context, cardID string) bool {
	key := s.cardImageKey(cardID)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	return err == nil
}

// DeleteCardImage removes a card's artwork from the bucket.
func (s *SpacesService) DeleteCardImage(ctx context.Context, cardID string) error {
	key := s.cardImageKey(cardID)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", key, err)
	}
	return nil
}

func (s *SpacesService) cardImageKey(cardID string) string {
	return fmt.Sprintf("%s/%s.jpg", s.CardRoot, cardID)
}

func (s *SpacesService) GetBucket() string   { return s.bucket }
func (s *SpacesService) GetRegion() string   { return s.region }
func (s *SpacesService) GetCardRoot() string { return s.CardRoot }
