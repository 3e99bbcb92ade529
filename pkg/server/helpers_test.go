package server_test

import (
	"io"
	"strings"

	"github.com/nordicgov/citizenship-review/pkg/domain"
)

func testOwner() domain.User {
	return domain.User{ID: "owner-1", Email: "ola@example.no", IsReviewer: false}
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
