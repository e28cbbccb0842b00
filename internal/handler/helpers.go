package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"commUnity/internal/middleware"
	"commUnity/internal/pkg"

	"github.com/gin-gonic/gin"
)

// ID 请求体中 12 和 "12" 都接受
type ID uint64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*id = ID(v)
	return nil
}

func bindErr(c *gin.Context) {
	_ = c.Error(pkg.NewValidationError("invalid params"))
}

// paramID 解析路径参数中的 id
func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(pkg.NewValidationError("invalid " + name))
		return 0, false
	}
	return id, true
}

// optionalFile 取可选上传文件，没有上传时返回 nil
func optionalFile(c *gin.Context, field string) *multipart.FileHeader {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil
	}
	fh, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return fh
}

func currentUser(c *gin.Context) uint64 {
	return middleware.UserID(c)
}

func setTokenCookie(c *gin.Context, token string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", secure, true)
}
