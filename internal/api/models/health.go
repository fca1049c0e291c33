package models

import (
	"strconv"
	"time"
)

// Health is the body of GET /health.
type Health struct {
	Status     string                   `json:"status"`
	Timestamp  EpochSeconds             `json:"timestamp"`
	Services   map[string]ServiceHealth `json:"services"`
	HTTPStatus int                      `json:"http_status"`
}

// ServiceHealth is one entry of Health.Services.
type ServiceHealth struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	BotID       *int64 `json:"bot_id,omitempty"`
	BotUsername string `json:"bot_username,omitempty"`
}

// EpochSeconds marshals a time as fractional seconds since the Unix epoch.
type EpochSeconds time.Time

// MarshalJSON implements json.Marshaler for EpochSeconds.
func (t EpochSeconds) MarshalJSON() ([]byte, error) {
	secs := float64(time.Time(t).UnixMicro()) / 1e6
	return strconv.AppendFloat(nil, secs, 'f', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler for EpochSeconds.
func (t *EpochSeconds) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*t = EpochSeconds(time.UnixMicro(int64(secs * 1e6)).UTC())
	return nil
}

// Time returns the underlying time.Time.
func (t EpochSeconds) Time() time.Time {
	return time.Time(t)
}
