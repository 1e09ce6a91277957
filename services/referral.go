package services

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseReferralCode extracts a referrer id from a /start payload of the form
// "/start ref<digits>". The prefix is case-insensitive; anything else yields
// no code.
func ParseReferralCode(text string) (int64, bool) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 {
		return 0, false
	}
	token := strings.TrimSpace(parts[1])
	if len(token) < 4 || !strings.EqualFold(token[:3], "ref") {
		return 0, false
	}
	id, err := strconv.ParseInt(token[3:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// InviteLink builds the deep link a user shares to refer friends.
func InviteLink(botUsername string, telegramID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref%d", botUsername, telegramID)
}
