package service

import "github.com/Wyydra/yacall/internal/core/domain"

// pairNewMember returns the rooms created when member joins call. The
// newcomer becomes the superior, hence the offerer, toward every real
// participant it shares no room with yet. Roles of existing rooms are
// never touched.
func pairNewMember(call *domain.Call, member domain.UserID) []domain.Room {
	var rooms []domain.Room
	for _, mate := range call.Members.RealMembers() {
		if mate == member || call.Paired(member, mate) {
			continue
		}
		rooms = append(rooms, domain.Room{Superior: member, Junior: mate})
	}
	return rooms
}
