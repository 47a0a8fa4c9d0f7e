// Package events publishes pipeline events to Amazon EventBridge so that
// downstream consumers (notification senders, analytics) can react to new
// wallpapers without coupling to the webhook path.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	// Source is the EventBridge source of every event emitted here.
	Source = "wallpaper-ai.pipeline"

	// DetailTypeFinalized marks a newly cataloged wallpaper.
	DetailTypeFinalized = "WallpaperFinalized"
)

// WallpaperFinalized is the detail of a DetailTypeFinalized event.
type WallpaperFinalized struct {
	FileName      string `json:"fileName"`
	Category      string `json:"category"`
	Sequence      int    `json:"sequence"`
	IsFree        bool   `json:"isFree"`
	URL           string `json:"url"`
	CategoryCount int    `json:"categoryCount"`
}

type putEventsAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends events to one event bus.
type Publisher struct {
	client  putEventsAPI
	busName string
}

// NewPublisher creates a Publisher for busName.
func NewPublisher(client *eventbridge.Client, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// WallpaperFinalized emits a DetailTypeFinalized event.
func (p *Publisher) WallpaperFinalized(ctx context.Context, event WallpaperFinalized) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal WallpaperFinalized: %w", err)
	}

	input := &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(Source),
				DetailType:   aws.String(DetailTypeFinalized),
				Detail:       aws.String(string(detail)),
			},
		},
	}

	result, err := p.client.PutEvents(ctx, input)
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("filename", event.FileName).Msg("WallpaperFinalized emitted to EventBridge")
	return nil
}
