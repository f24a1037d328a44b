// Package notify posts batch failure alerts to Slack. Alerts are best-effort;
// a failed post never fails the batch.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/fenorlabs/totesys-etl/pkg/etlerr"
)

type SlackConfig struct {
	Logger  *slog.Logger
	Token   string
	Channel string

	// Client overrides the constructed API client; used by tests.
	Client SlackAPI
}

func (cfg *SlackConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Token == "" && cfg.Client == nil {
		return errors.New("slack token is required")
	}
	if cfg.Channel == "" {
		return errors.New("slack channel is required")
	}
	return nil
}

// SlackAPI is the subset of the Slack client the notifier uses.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackNotifier struct {
	log     *slog.Logger
	cfg     SlackConfig
	client  SlackAPI
	channel string
}

func NewSlackNotifier(cfg SlackConfig) (*SlackNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		client = slack.New(cfg.Token)
	}
	return &SlackNotifier{
		log:     cfg.Logger,
		cfg:     cfg,
		client:  client,
		channel: cfg.Channel,
	}, nil
}

// BatchFailed posts a failure summary for one batch.
func (n *SlackNotifier) BatchFailed(ctx context.Context, batchID string, codes []etlerr.Code) {
	labels := make([]string, len(codes))
	for i, c := range codes {
		labels[i] = string(c)
	}
	text := fmt.Sprintf(":rotating_light: totesys ETL batch `%s` failed (codes: %s)",
		batchID, strings.Join(labels, ", "))

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		n.log.Warn("notify: failed to post batch failure", "batch_id", batchID, "error", err)
		return
	}
	n.log.Debug("notify: posted batch failure", "batch_id", batchID)
}
