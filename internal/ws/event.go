package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Event is the envelope every realtime payload travels in.
type Event struct {
	Type  string      `json:"type"`
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

const channelPrefix = "chat_"

// Channel is the per-member pub/sub channel name.
func Channel(memberID uint) string {
	return channelPrefix + strconv.FormatUint(uint64(memberID), 10)
}

// MemberFromChannel parses the member id out of a channel name.
func MemberFromChannel(channel string) (uint, error) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return 0, fmt.Errorf("not a member channel: %q", channel)
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, channelPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("not a member channel: %q", channel)
	}
	return uint(id), nil
}
