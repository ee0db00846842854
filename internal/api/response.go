package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cozy-creator/cattleid/internal/app"
	"github.com/cozy-creator/cattleid/internal/utils/imageutil"
	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const MIMEMsgpack = "application/msgpack"

var (
	errNoImage       = errors.New("image is required")
	errImageTooLarge = errors.New("image exceeds the upload limit")
)

// respond writes obj as msgpack when the client asks for it and as JSON
// otherwise.
func respond(c *gin.Context, status int, obj any) {
	if !strings.Contains(c.GetHeader("Accept"), MIMEMsgpack) {
		c.JSON(status, obj)
		return
	}

	data, err := msgpack.Marshal(obj)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to encode response"})
		return
	}

	c.Data(status, MIMEMsgpack, data)
}

func respondError(c *gin.Context, status int, message string) {
	respond(c, status, gin.H{"message": message})
	c.Abort()
}

func getApp(c *gin.Context) *app.App {
	return c.MustGet("app").(*app.App)
}

// readImage reads the multipart "image" field, bounded by max_upload_mb,
// and rejects content that is not a supported image format.
func readImage(c *gin.Context) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, errNoImage
	}

	limit := int64(getApp(c).Config().MaxUploadMB) << 20
	if file.Size > limit {
		return nil, errImageTooLarge
	}

	data, err := readFileContent(file, limit)
	if err != nil {
		return nil, err
	}

	if mime := imageutil.DetectMIME(data); !imageutil.IsSupported(mime) {
		return nil, fmt.Errorf("%w: %s", imageutil.ErrUnsupportedFormat, mime)
	}

	return data, nil
}

func readFileContent(file *multipart.FileHeader, limit int64) ([]byte, error) {
	content, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer content.Close()

	data, err := io.ReadAll(io.LimitReader(content, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, errImageTooLarge
	}

	return data, nil
}

// bindRect reads an optional crop rectangle from the form. It returns nil
// when no rectangle field was sent.
func bindRect(c *gin.Context) (*imageutil.Rect, error) {
	fields := []string{"x", "y", "width", "height"}

	present := false
	for _, field := range fields {
		if _, ok := c.GetPostForm(field); ok {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}

	var rect imageutil.Rect
	if err := c.ShouldBind(&rect); err != nil {
		return nil, fmt.Errorf("invalid crop rectangle: %w", err)
	}

	return &rect, nil
}

// imageErrorStatus maps upload and decode failures to status codes.
func imageErrorStatus(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNoImage):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, errImageTooLarge), errors.Is(err, imageutil.ErrImageTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, imageutil.ErrUnsupportedFormat):
		respondError(c, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, imageutil.ErrEmptyCrop):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		getApp(c).Logger.Warn("failed to read image", zap.Error(err))
		respondError(c, http.StatusBadRequest, "failed to read image")
	}
}
