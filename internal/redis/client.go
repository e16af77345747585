package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// Key builders. Every cache entry lives under one of these prefixes so the
// sweeper and revocation paths can find them.

func ProcessKey(processID string) string {
	return fmt.Sprintf("checkin:process:%s", processID)
}

func ProcessLockKey(tokenID string) string {
	return fmt.Sprintf("checkin:lock:%s", tokenID)
}

func ValidationKey(fingerprint, hotelID string) string {
	return fmt.Sprintf("token:validation:%s:%s", fingerprint, hotelID)
}

func ValidationIndexKey(tokenID string) string {
	return fmt.Sprintf("token:validation-index:%s", tokenID)
}

func BookingRefKey(tokenID string) string {
	return fmt.Sprintf("token:booking:%s", tokenID)
}

func BookingSnapshotKey(bookingID string) string {
	return fmt.Sprintf("booking:snapshot:%s", bookingID)
}

func CounterKey(name string) string {
	return fmt.Sprintf("metrics:counter:%s", name)
}

func SecurityEventsKey() string {
	return "audit:security-events"
}

func HotelChannel(hotelID string) string {
	return fmt.Sprintf("events:hotel:%s", hotelID)
}

func AdminChannel() string {
	return "events:admin"
}
