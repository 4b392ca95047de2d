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

package labsync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/labsync/labsync/model"
	"github.com/sirupsen/logrus"
)

// ErrInvalidUpdate is returned for updates without a message id.
var ErrInvalidUpdate = errors.New("invalid Telegram update")

type TelegramUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from,omitempty"`
	Text      string        `json:"text,omitempty"`
	Date      int64         `json:"date"`
}

// TelegramUpdate is the part of a bot update the pipeline reads.
type TelegramUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *TelegramMessage `json:"message,omitempty"`
	EditedMessage *TelegramMessage `json:"edited_message,omitempty"`
}

// messageFromUpdate maps an update to a message. Edited messages are used when
// there is no new one.
func messageFromUpdate(raw json.RawMessage, now time.Time) (*model.Message, error) {
	var update TelegramUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, ErrInvalidUpdate
	}
	tm := update.Message
	if tm == nil {
		tm = update.EditedMessage
	}
	if tm == nil || tm.MessageID == 0 {
		return nil, ErrInvalidUpdate
	}

	msg := &model.Message{
		MessageID:  strconv.FormatInt(tm.MessageID, 10),
		SenderID:   "unknown",
		Text:       tm.Text,
		Date:       now,
		RawPayload: raw,
	}
	if tm.From != nil && tm.From.ID != 0 {
		msg.SenderID = strconv.FormatInt(tm.From.ID, 10)
	}
	if tm.Date > 0 {
		msg.Date = time.Unix(tm.Date, 0).UTC()
	}
	return msg, nil
}

// IngestTelegramUpdate stores the message carried by an update and queues its
// extraction when it has text. A repeated message id refreshes the stored message.
func (l *Labsync) IngestTelegramUpdate(ctx context.Context, raw json.RawMessage) (*model.Message, error) {
	ctx, span := tracer.Start(ctx, "IngestTelegramUpdate")
	defer span.End()

	msg, err := messageFromUpdate(raw, time.Now())
	if err != nil {
		return nil, err
	}

	stored, err := l.datasource.UpsertMessage(ctx, msg)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"message_id":  stored.ID,
		"telegram_id": stored.MessageID,
	}).Info("telegram message received")
	l.notifier.Emit(ctx, EventMessageCreated, MessageCreated{Message: stored})

	if strings.TrimSpace(stored.Text) != "" {
		l.chain(ctx, model.StageExtraction, stored.ID)
	}
	return stored, nil
}
