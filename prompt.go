package main

import "slices"

// Prompt kinds. Options are opaque payloads: text for dilemma/question,
// image data for photo. The votePerson kind carries only a question.
const (
	kindDilemma    = "dilemma"
	kindQuestion   = "question"
	kindPhoto      = "photo"
	kindVotePerson = "votePerson"
)

// Prompt is one creator submission, pending between submission and
// resolution. Its absence outside that window is the signal that no round
// is awaiting votes.
type Prompt struct {
	Option1  string `json:"option1,omitempty"`
	Option2  string `json:"option2,omitempty"`
	Kind     string `json:"type"`
	Question string `json:"question,omitempty"`

	creatorID   string
	creatorName string
}

func (p *Prompt) complete() bool {
	switch p.Kind {
	case kindVotePerson:
		return p.Question != ""
	case kindDilemma, kindQuestion, kindPhoto:
		return p.Option1 != "" && p.Option2 != ""
	}
	return false
}

// SubmitPrompt validates and stores the current creator's prompt, then fans
// it out: ordinary kinds go to everyone except the creator, who is told to
// wait; votePerson prompts go to the whole room, creator included. Any
// running creation timer stops, and an initial vote-progress snapshot is
// broadcast so clients can render "0 of N voted".
func (r *Room) SubmitPrompt(playerID string, prompt Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errRoomNotFound
	}
	if len(r.players) == 0 || r.players[r.turnIndex].id != playerID {
		return errNotYourTurn
	}
	if !slices.Contains(r.settings.AllowedModes, prompt.Kind) {
		return errModeNotAllowed
	}
	if !prompt.complete() {
		return errIncompleteSubmission
	}

	creator := r.players[r.turnIndex]
	prompt.creatorID = creator.id
	prompt.creatorName = creator.name

	r.prompt = &prompt
	r.votes = make(map[string]Vote)
	r.touchLocked(playerID)
	r.stopCreateTimerLocked(true)

	received := newMessage("dilemma-received", dilemmaReceivedData{
		Option1:     prompt.Option1,
		Option2:     prompt.Option2,
		Kind:        prompt.Kind,
		Question:    prompt.Question,
		CreatorName: prompt.creatorName,
	})

	if prompt.Kind == kindVotePerson {
		r.broadcastLocked(received)
	} else {
		for _, p := range r.players {
			if p.id == creator.id {
				continue
			}
			p.trySend(received)
		}
		creator.trySend(newMessage("waiting-for-vote", nil))
	}

	r.broadcastVoteStatusLocked()
	return nil
}
