// codec.go - Request decoding and response negotiation (JSON or msgpack)
package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEApplicationMsgpack is the content type used for msgpack bodies.
const MIMEApplicationMsgpack = "application/x-msgpack"

func isMsgpack(mime string) bool {
	return strings.Contains(mime, "msgpack")
}

// bind decodes the request body, using msgpack when the client sent it.
func bind(c echo.Context, v interface{}) error {
	if !isMsgpack(c.Request().Header.Get(echo.HeaderContentType)) {
		if err := c.Bind(v); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
		return nil
	}

	if err := msgpack.NewDecoder(c.Request().Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return NewBadRequestError("invalid msgpack body", err)
	}
	return nil
}

// respond writes v as msgpack when the Accept header asks for it, JSON otherwise.
func respond(c echo.Context, status int, v interface{}) error {
	if !isMsgpack(c.Request().Header.Get(echo.HeaderAccept)) {
		return c.JSON(status, v)
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewInternalError("failed to encode msgpack", err))
	}
	return c.Blob(status, MIMEApplicationMsgpack, data)
}
