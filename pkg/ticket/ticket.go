package ticket

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samborkent/uuidv7"
)

var ErrMalformed = errors.New("not correct format")

// Generate returns an opaque ticket naming the deferred action.
func Generate(action string) string {
	uniqueID := uuidv7.New()

	code := fmt.Sprintf("%s|%s", action, uniqueID.String())

	return base64.RawURLEncoding.EncodeToString([]byte(code))
}

// Decode splits a ticket back into the action name and its unique id.
func Decode(code string) (action, uniqueID string, err error) {
	decodedBytes, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil {
		return "", "", err
	}
	res := strings.Split(string(decodedBytes), "|")
	if len(res) != 2 || res[0] == "" || res[1] == "" {
		return "", "", ErrMalformed
	}
	return res[0], res[1], nil
}
