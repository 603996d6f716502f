package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RestaurantDisplayName turns a slug like "joes-diner" into "Joes Diner".
func RestaurantDisplayName(slug string) string {
	words := strings.FieldsFunc(strings.TrimSpace(slug), func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	caser := cases.Title(language.English)
	for index, word := range words {
		words[index] = caser.String(word)
	}
	return strings.Join(words, " ")
}

// JoinConfirmationMessage is sent after a guest with a phone number joins the queue.
func JoinConfirmationMessage(name, slug string, position int) string {
	return fmt.Sprintf(
		"Hi %s! You've been added to the waitlist at %s. You're #%d in line. We'll text you when your table is ready.",
		name, RestaurantDisplayName(slug), position,
	)
}

// TableReadyMessage is sent when the host marks a party ready.
func TableReadyMessage(slug string) string {
	return fmt.Sprintf("Your table at %s is ready! Please proceed to the host stand.", RestaurantDisplayName(slug))
}
