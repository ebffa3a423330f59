package core

import "strings"

// Access is a combinable bitmask of account capability flags.
type Access uint8

const (
	AccessUser Access = 1 << iota
	AccessModerator
	AccessAdmin
	AccessBot
	AccessAgreement
	AccessFresh
)

// IsUser reports whether the user flag is set.
func (a Access) IsUser() bool { return a&AccessUser != 0 }

// IsAdmin reports whether the admin flag is set.
func (a Access) IsAdmin() bool { return a&AccessAdmin != 0 }

// IsMod reports whether the moderator flag is set; admins count as moderators.
func (a Access) IsMod() bool { return a&AccessModerator != 0 || a.IsAdmin() }

// IsBot reports whether the bot flag is set.
func (a Access) IsBot() bool { return a&AccessBot != 0 }

// ParseAccess converts a stored comma-separated access string
// (e.g. "user,moderator") into a bitmask. Unknown tokens are ignored.
func ParseAccess(s string) Access {
	var a Access
	for _, tok := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(tok)) {
		case "user":
			a |= AccessUser
		case "moderator", "mod":
			a |= AccessModerator
		case "admin":
			a |= AccessAdmin
		case "bot":
			a |= AccessBot
		case "agreement":
			a |= AccessAgreement
		case "fresh":
			a |= AccessFresh
		}
	}
	return a
}

// String renders the bitmask back into the stored comma-separated form.
func (a Access) String() string {
	var parts []string
	if a&AccessUser != 0 {
		parts = append(parts, "user")
	}
	if a&AccessModerator != 0 {
		parts = append(parts, "moderator")
	}
	if a&AccessAdmin != 0 {
		parts = append(parts, "admin")
	}
	if a&AccessBot != 0 {
		parts = append(parts, "bot")
	}
	if a&AccessAgreement != 0 {
		parts = append(parts, "agreement")
	}
	if a&AccessFresh != 0 {
		parts = append(parts, "fresh")
	}
	return strings.Join(parts, ",")
}
