/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"net/http"
	"time"

	"github.com/labsync/labsync/internal/request"
	"github.com/sirupsen/logrus"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// SlackMessage builds the alert posted for err at time at.
func SlackMessage(err error, at time.Time) interface{} {
	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: "Error From LabSync 🐞", Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Error:*\n" + err.Error()}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Time:*\n" + at.Format(time.RFC822)}}},
	}}
}

// Alerter reports operational errors to a Slack incoming webhook. A zero URL
// only logs.
type Alerter struct {
	url    string
	client *http.Client
}

func NewAlerter(webhookURL string, client *http.Client) *Alerter {
	if client == nil {
		client = request.NewClient()
	}
	return &Alerter{url: webhookURL, client: client}
}

// Send posts the alert and returns the delivery error.
func (a *Alerter) Send(ctx context.Context, err error) error {
	_, sendErr := request.PostJSON(ctx, a.client, a.url, nil, SlackMessage(err, time.Now()), nil)
	return sendErr
}

// NotifyError logs err and, when Slack is configured, posts it in the background.
func (a *Alerter) NotifyError(err error) {
	logrus.Error(err)
	if a == nil || a.url == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), request.DefaultTimeout)
		defer cancel()
		if sendErr := a.Send(ctx, err); sendErr != nil {
			logrus.Warnf("failed to send slack alert: %v", sendErr)
		}
	}()
}
