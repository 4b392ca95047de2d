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

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/labsync/labsync"
)

// TelegramWebhook stores a bot update. Only malformed updates are rejected.
func (a Api) TelegramWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Telegram update"})
		return
	}

	if _, err := a.labsync.IngestTelegramUpdate(c.Request.Context(), raw); err != nil {
		if errors.Is(err, labsync.ErrInvalidUpdate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Telegram update"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
