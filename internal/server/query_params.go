package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var errInvalidID = errors.New("invalid_snowflake_id")

func parseSnowflakeID(value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errInvalidID
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return 0, errInvalidID
	}
	return parsed, nil
}
