package main

import "time"

const (
	// Question rounds display every collected answer in sequence.
	answerDisplayTime = 10 * time.Second
	answerBufferTime  = 2 * time.Second

	// Other rounds scale reading time with room size.
	resultBaseTime      = 4 * time.Second
	resultPerPlayerTime = 1 * time.Second
)

// Vote is one voter's response to the active prompt. Which fields matter
// depends on the prompt kind; a voter may resubmit to change their mind
// until the round resolves.
type Vote struct {
	Choice           int    `json:"choice,omitempty"`
	Answer           string `json:"answer,omitempty"`
	SelectedPersonID string `json:"selectedPersonId,omitempty"`
}

var rareRoundQuestions = []string{
	"Who is most likely to become famous?",
	"Who would survive longest on a desert island?",
	"Who laughs at their own jokes the most?",
	"Who is most likely to forget their own birthday?",
	"Who would you call first after winning the lottery?",
	"Who is secretly the most competitive?",
}

// eligibleVotersLocked returns the players expected to respond to the
// current prompt: everyone but the creator, or the whole room for the
// votePerson kind.
func (r *Room) eligibleVotersLocked() []*Player {
	if r.prompt != nil && r.prompt.Kind == kindVotePerson {
		return r.players
	}
	eligible := make([]*Player, 0, len(r.players))
	for i, p := range r.players {
		if i == r.turnIndex {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible
}

func (r *Room) broadcastVoteStatusLocked() {
	if r.prompt == nil {
		return
	}

	eligible := r.eligibleVotersLocked()
	status := make([]voteStatusEntry, 0, len(eligible))
	for _, p := range eligible {
		_, voted := r.votes[p.id]
		status = append(status, voteStatusEntry{Name: p.name, Voted: voted})
	}

	r.broadcastLocked(newMessage("update-vote-status", status))
}

// CastVote records a vote for the active prompt, last vote wins. A vote
// with no prompt pending is silently dropped, as is a vote from a player
// who is not eligible for the current kind. Completion triggers resolution
// in the same critical section, so a duplicate "last vote" race can never
// resolve a round twice.
func (r *Room) CastVote(voterID string, v Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.prompt == nil {
		return nil
	}

	voter := r.playerByIDLocked(voterID)
	if voter == nil {
		return nil
	}

	if r.prompt.Kind == kindVotePerson {
		if voterID == r.prompt.creatorID && v.SelectedPersonID == voterID {
			return errSelfVote
		}
	} else if voterID == r.prompt.creatorID {
		return nil
	}

	r.votes[voterID] = v
	r.touchLocked(voterID)

	r.broadcastVoteStatusLocked()

	if len(r.votes) >= len(r.eligibleVotersLocked()) {
		r.finishRoundLocked()
	}
	return nil
}

func roundDelay(kind string, playerCount, answerCount int) time.Duration {
	if kind == kindQuestion {
		return time.Duration(answerCount)*answerDisplayTime + answerBufferTime
	}
	return resultBaseTime + time.Duration(playerCount)*resultPerPlayerTime
}

// finishRoundLocked resolves the active round: tallies votes, broadcasts
// the result with the inter-round delay the server itself will honor,
// resets round state, advances the turn, and schedules the next round
// announcement. The pendingPrompt guard makes resolution idempotent.
func (r *Room) finishRoundLocked() {
	if r.prompt == nil {
		return
	}
	prompt := r.prompt

	votesByOption := map[int][]string{1: {}, 2: {}}
	answers := make([]answerEntry, 0)
	var votePersonResults map[string][]string
	if prompt.Kind == kindVotePerson {
		votePersonResults = make(map[string][]string)
	}

	// Iterate the roster, not the vote map, so result ordering follows
	// join order.
	for _, p := range r.players {
		v, ok := r.votes[p.id]
		if !ok {
			continue
		}

		if prompt.Kind == kindVotePerson {
			if target := r.playerByIDLocked(v.SelectedPersonID); target != nil {
				votePersonResults[target.id] = append(votePersonResults[target.id], p.name)
			}
			continue
		}

		if v.Choice == 1 || v.Choice == 2 {
			votesByOption[v.Choice] = append(votesByOption[v.Choice], p.name)
		}
		if v.Answer != "" {
			answers = append(answers, answerEntry{Name: p.name, Text: v.Answer, Choice: v.Choice})
		}
	}

	// Ties always favor option 1.
	winningChoice := 1
	if len(votesByOption[2]) > len(votesByOption[1]) {
		winningChoice = 2
	}

	delay := roundDelay(prompt.Kind, len(r.players), len(answers))
	if r.delayOverride > 0 {
		delay = r.delayOverride
	}

	r.broadcastLocked(newMessage("vote-result", voteResultData{
		WinningChoice:     winningChoice,
		VotesByOption:     votesByOption,
		Dilemma:           prompt,
		Answers:           answers,
		VotePersonResults: votePersonResults,
		Delay:             delay.Milliseconds(),
	}))

	r.prompt = nil
	r.votes = make(map[string]Vote)
	r.round++
	r.totalRounds++
	r.advanceTurnLocked()

	r.rareQuestion = ""
	if r.settings.RareRoundEnabled &&
		r.totalRounds%r.settings.RareRoundFrequency == 0 &&
		len(r.players) >= 3 {
		r.rareQuestion = rareRoundQuestions[randomInt(len(rareRoundQuestions))]
	}

	time.AfterFunc(delay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// The room may have been torn down while the delay ran.
		if r.closed || !r.started || len(r.players) == 0 {
			return
		}
		r.announceRoundLocked()
	})
}

// announceRoundLocked broadcasts the new-round turn assignment and arms the
// creation timer if the room uses one.
func (r *Room) announceRoundLocked() {
	r.broadcastLocked(newMessage("new-round", newRoundData{
		TurnID:            r.players[r.turnIndex].id,
		Round:             r.round,
		Settings:          r.settings,
		IsRareRound:       r.rareQuestion != "",
		RareRoundQuestion: r.rareQuestion,
	}))
	r.startCreateTimerLocked()
}

// skipRoundLocked abandons a round whose creator never submitted: no
// tallying, just a skip notice and an immediate fresh round. Skipped rounds
// advance the round counter but do not count toward rare-round cadence.
func (r *Room) skipRoundLocked() {
	r.prompt = nil
	r.votes = make(map[string]Vote)
	r.round++
	r.advanceTurnLocked()

	r.broadcastLocked(newMessage("round-skipped", roundSkippedData{Round: r.round}))
	r.announceRoundLocked()
}
