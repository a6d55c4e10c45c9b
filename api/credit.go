/*
Copyright 2025 Inkpreview Authors.

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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkpreview/inkpreview/api/middleware"
)

func (a Api) GetCredits(c *gin.Context) {
	userID := c.GetHeader(middleware.UserHeader)

	if err := a.inkpreview.InitializeCredits(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	balance, err := a.inkpreview.GetCredits(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"credits": balance})
}
