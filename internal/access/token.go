package access

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// TokenBytes is the amount of randomness in an invitation token.
const TokenBytes = 32

// startPrefix marks invitation payloads in bot deep links.
const startPrefix = "invite_"

// newTokenValue reads TokenBytes from r and encodes them base64url.
func newTokenValue(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest returns the at-rest key for a token value. Stores never see the
// plaintext, so a leaked database cannot be replayed.
func Digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// InviteLink builds the bot deep link that redeems token on /start.
func InviteLink(botUsername, token string) string {
	botUsername = strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	if botUsername == "" {
		return ""
	}
	q := url.Values{"start": {startPrefix + token}}
	return "https://t.me/" + url.PathEscape(botUsername) + "?" + q.Encode()
}

// ParseStartPayload extracts an invitation token from a /start command or
// its bare payload. It reports false when the text carries no invitation.
func ParseStartPayload(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "/start"); ok {
		// "/start@botname payload" in group chats
		if strings.HasPrefix(rest, "@") {
			if i := strings.IndexAny(rest, " \t"); i >= 0 {
				rest = rest[i:]
			} else {
				rest = ""
			}
		}
		text = strings.TrimSpace(rest)
	}
	token, ok := strings.CutPrefix(text, startPrefix)
	if !ok || token == "" || strings.ContainsAny(token, " \t\n") {
		return "", false
	}
	return token, true
}
