package utils

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatUserMention formats a user ID as a Discord mention
func FormatUserMention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// HasAdministrator checks a member permission set for the administrator bit
func HasAdministrator(permissions int64) bool {
	return permissions&discordgo.PermissionAdministrator != 0
}

// FormatCoins formats an amount with the currency name, grouping digits the
// Spanish way
func FormatCoins(amount int) string {
	p := message.NewPrinter(language.Spanish)
	if amount == 1 || amount == -1 {
		return p.Sprintf("%d moneda del caos", amount)
	}
	return p.Sprintf("%d monedas del caos", amount)
}
