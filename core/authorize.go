package core

// CanMutate decides whether actor may edit or delete message m.
//
// The rule: actor must have sent m, and every message persisted after m in
// the same room must also be actor's. In other words a user may only touch
// messages inside their own unbroken trailing run at the tail of the room's
// history; the instant another participant posts, all earlier messages
// become immutable.
//
// history must contain at least the suffix of the room's messages from m to
// the end, in insertion order. Messages persisted before m are ignored.
func CanMutate(history []Message, m Message, actor string) bool {
	if m.Sender != actor {
		return false
	}
	for _, h := range history {
		if h.ID <= m.ID {
			continue
		}
		if h.Sender != actor {
			return false
		}
	}
	return true
}
