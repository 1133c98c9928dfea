package main

import "github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"

// messages is the built-in English rendering of every key the game emits.
var messages = platform.Catalog{
	"phase.day":                "Day %d begins. The village wakes up.",
	"phase.night":              "Night %d falls. The village sleeps.",
	"phase.already":            "The game is already in that phase (%s).",
	"separator":                "──────── night %d ────────",
	"vote.none":                "Nobody was chosen.",
	"vote.tie":                 "Tie between %s. Vote again among them.",
	"vote.killed.day":          "The village has eliminated %s.",
	"vote.killed.night":        "%s was found dead this morning.",
	"vote.wrong_channel":       "Votes are not taken in this channel right now.",
	"vote.not_alive":           "%s is not a living player.",
	"vote.not_eligible":        "%s cannot be voted for. Choices: %s.",
	"vote.no_session":          "There is no vote running.",
	"vote.nothing_to_retract":  "You have no vote to withdraw.",
	"raven.day_only":           "The raven only acts by day.",
	"raven.already_marked":     "The raven has already chosen today.",
	"raven.nothing_to_retract": "The raven has not chosen anybody.",
	"raven.reveal":             "The raven has marked %s. Two votes are held against them.",
	"most_voted.day_only":      "The vote count is only available by day.",
	"most_voted.none":          "Nobody has received a vote yet.",
	"most_voted.you":           "You are currently the most voted player (%d votes).",
	"most_voted.single":        "%s leads with %d votes.",
	"most_voted.tied":          "You are tied at the top (%[1]s) with %[2]d votes.",
	"most_voted.tie":           "Tie at the top between %s with %d votes.",
	"channel.not_ready":        "The %s channel is not set up.",
	"interview.already":        "%s is already being interviewed.",
	"interview.not_running":    "%s is not being interviewed.",
	"interview.started":        "Interview with %s started.",
	"interview.ended":          "Interview with %s ended.",
	"command.forbidden":        "Only the game master can do that.",
	"command.unknown":          "Unknown command %q.",
	"command.bad_kind":         "Unknown vote kind %q.",
}
