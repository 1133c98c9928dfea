package game

// ChannelRole is a logical slot of the game that a concrete platform channel
// is registered under.
type ChannelRole string

const (
	ChannelVillageAnnouncements ChannelRole = "village-announcements"
	ChannelVotes                ChannelRole = "votes"
	ChannelSubjects             ChannelRole = "subjects"
	ChannelVillage              ChannelRole = "village"
	ChannelRaven                ChannelRole = "raven"
	ChannelInterview            ChannelRole = "interview"
	ChannelLittleGirl           ChannelRole = "little-girl"
	ChannelCupid                ChannelRole = "cupid"
	ChannelMysteryDate          ChannelRole = "mystery-date"
	ChannelWolvesChat           ChannelRole = "wolves-chat"
	ChannelWolvesVote           ChannelRole = "wolves-vote"
)

// ChannelRoles lists every channel role, in registration order.
var ChannelRoles = []ChannelRole{
	ChannelVillageAnnouncements,
	ChannelVotes,
	ChannelSubjects,
	ChannelVillage,
	ChannelRaven,
	ChannelInterview,
	ChannelLittleGirl,
	ChannelCupid,
	ChannelMysteryDate,
	ChannelWolvesChat,
	ChannelWolvesVote,
}

func (r ChannelRole) Valid() bool {
	for _, known := range ChannelRoles {
		if r == known {
			return true
		}
	}
	return false
}

// VoteChannel returns the channel where ballots of kind k are cast.
func VoteChannel(k Kind) ChannelRole {
	if k == Night {
		return ChannelWolvesVote
	}
	return ChannelVotes
}

// DayChannels are opened to the alive role by day and closed by night.
var DayChannels = []ChannelRole{ChannelVillage, ChannelVotes, ChannelSubjects}

// WolfChannels are where the wolves talk and vote.
var WolfChannels = []ChannelRole{ChannelWolvesVote, ChannelWolvesChat}
