package dispatcher

import (
	"strings"

	"github.com/davebekker/signal-budget-bot/internal/models"
)

// AllowList decides which senders may issue commands: the primary identity
// plus the members of the allowed group.
type AllowList struct {
	primary string
	members map[string]struct{}
	groupID string
}

// NewAllowList builds an AllowList. When groupID is set, group messages are
// only accepted from that group.
func NewAllowList(primary string, members []string, groupID string) AllowList {
	a := AllowList{
		primary: strings.TrimSpace(primary),
		members: make(map[string]struct{}, len(members)),
		groupID: strings.TrimSpace(groupID),
	}
	for _, m := range members {
		if m = strings.TrimSpace(m); m != "" {
			a.members[m] = struct{}{}
		}
	}
	return a
}

// Permits reports whether msg comes from a permitted sender.
func (a AllowList) Permits(msg models.InboundMessage) bool {
	sender := strings.TrimSpace(msg.Sender)
	if sender == "" {
		return false
	}
	if msg.Conversation.IsGroup && a.groupID != "" && msg.Conversation.ID != a.groupID {
		return false
	}
	if sender == a.primary {
		return true
	}
	_, ok := a.members[sender]
	return ok
}
