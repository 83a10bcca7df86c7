package main

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Clock is injected so tests can drive the cooldown deadline.
type Clock func() time.Time

// PlayerSession holds the per-identity state owned by this process. The
// remote service stays authoritative for faction, node pointer and ledger;
// the lock/cooldown fields are a local pacing mechanism mirrored to durable
// storage by the Bridge.
type PlayerSession struct {
	mu sync.Mutex

	identity string
	token    string
	username string

	faction     string
	ledger      Resources
	attacksLeft int
	helpLeft    int

	currentID    string
	lockedAnswer string
	unlockAt     time.Time
	pendingNext  string
	gameOver     bool

	// initialized blocks durable mirror writes until the bridge has finished
	// reading cached state, so a slow init cannot be clobbered by defaults.
	initialized bool
}

func (s *PlayerSession) lockedNow(now time.Time) bool {
	return !s.unlockAt.IsZero() && now.Before(s.unlockAt)
}

// AnswerFailure classifies recoverable submission failures. State is never
// mutated when one of these is returned.
type AnswerFailure int

const (
	FailNone AnswerFailure = iota
	FailNoQuestion
	FailLocked
	FailInvalidInput
	FailUnknownOption
)

type SubmitResult struct {
	OK      bool
	Failure AnswerFailure
	Message string
}

func refuse(kind AnswerFailure, msg string) SubmitResult {
	return SubmitResult{Failure: kind, Message: msg}
}

// Engine drives the two-phase answer protocol: phase 1 commits effects and
// the forward pointer, phase 2 reveals the next node once the cooldown has
// run out.
type Engine struct {
	questions *QuestionStore
	remote    *RemoteClient
	bridge    *Bridge
	clock     Clock
	cooldown  time.Duration

	// pushes tracks in-flight best-effort server syncs.
	pushes sync.WaitGroup
}

func newEngine(questions *QuestionStore, remote *RemoteClient, bridge *Bridge, clock Clock, cooldown time.Duration) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{questions: questions, remote: remote, bridge: bridge, clock: clock, cooldown: cooldown}
}

// Submit is phase 1. A valid answer locks the node, applies effects to the
// ledger immediately and fires the progress pointer and ledger to the server.
// Invalid answers refuse without mutating anything. Submitting into an active
// lock is ignored.
func (e *Engine) Submit(s *PlayerSession, answer string) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := e.clock()
	if s.lockedNow(now) {
		return refuse(FailLocked, "Answer already locked. Hold position until the timer clears."), nil
	}
	if s.pendingNext != "" {
		// Cooldown ran out while nobody was looking; reveal before judging
		// new input against a stale node.
		e.advanceLocked(s)
	}
	if s.gameOver || s.faction == "" || s.currentID == "" {
		return refuse(FailNoQuestion, "No active question."), nil
	}

	node, err := e.questions.Node(s.faction, s.currentID)
	if err != nil {
		return SubmitResult{}, err
	}

	var eff Effects
	var next string
	if node.mcq() {
		var opt *AnswerOption
		for i := range node.Options {
			if node.Options[i].Text == answer {
				opt = &node.Options[i]
				break
			}
		}
		if opt == nil {
			return refuse(FailUnknownOption, "That option is not on offer."), nil
		}
		eff = opt.Effects
		next = effectiveNext(node, opt)
	} else {
		trimmed := strings.TrimSpace(answer)
		if trimmed == "" {
			return refuse(FailInvalidInput, "An empty answer opens no doors."), nil
		}
		if node.Answer != anyAnswer && !strings.EqualFold(trimmed, node.Answer) {
			return refuse(FailInvalidInput, "That is not the passphrase."), nil
		}
		eff = node.Effects
		next = effectiveNext(node, nil)
	}

	if next == "" {
		return SubmitResult{}, &ContentError{Faction: s.faction, NodeID: node.ID, Reason: "accepted branch has no successor"}
	}
	if next != endSentinel {
		if _, err := e.questions.Node(s.faction, next); err != nil {
			return SubmitResult{}, err
		}
	}

	s.lockedAnswer = answer
	s.unlockAt = now.Add(e.cooldown)
	s.pendingNext = next
	s.ledger = s.ledger.apply(eff)
	e.bridge.mirrorLockLocked(s)
	e.pushAfterSubmit(s.token, s.ledger, next)

	return SubmitResult{OK: true, Message: "Correct. Protocols engaging."}, nil
}

// pushAfterSubmit records forward progress on the server right away so a
// second device sees the player's true position before the cooldown ends.
// Failures are logged, never retried, and never block local progression.
func (e *Engine) pushAfterSubmit(token string, ledger Resources, next string) {
	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.remote.UpdateProgress(ctx, token, ProgressUpdate{Current: next}); err != nil {
			log.Printf("push progress pointer failed: %v", err)
		}
		if err := e.remote.UpdateLedger(ctx, token, ledger); err != nil {
			log.Printf("push ledger failed: %v", err)
		}
	}()
}

// Advance is phase 2: clear the lock and reveal the pending node. Safe to
// call repeatedly; without a pending node it does nothing, and a call before
// the deadline leaves the lock untouched.
func (e *Engine) Advance(s *PlayerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockedNow(e.clock()) {
		return
	}
	e.advanceLocked(s)
}

func (e *Engine) advanceLocked(s *PlayerSession) {
	if s.pendingNext == "" {
		return
	}
	s.lockedAnswer = ""
	s.unlockAt = time.Time{}
	if s.pendingNext == endSentinel {
		s.gameOver = true
		s.currentID = ""
	} else {
		s.currentID = s.pendingNext
	}
	s.pendingNext = ""
	e.bridge.mirrorLockLocked(s)
}

// GameView is what the presentation layer renders.
type GameView struct {
	Faction      string        `json:"faction,omitempty"`
	Node         *QuestionNode `json:"node,omitempty"`
	Ledger       Resources     `json:"ledger"`
	GameOver     bool          `json:"gameOver"`
	LockedAnswer string        `json:"lockedAnswer,omitempty"`
	UnlockAt     int64         `json:"unlockAtEpochMs,omitempty"`
	AttacksLeft  int           `json:"attacksLeft"`
	HelpLeft     int           `json:"helpLeft"`
}

// Snapshot auto-runs phase 2 when the deadline has passed, then reports the
// current state. The countdown is derived from the absolute deadline, so a
// reload after a long suspension lands in the right place. A content error is
// returned alongside the best view available rather than crashing.
func (e *Engine) Snapshot(s *PlayerSession) (GameView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.unlockAt.IsZero() && !e.clock().Before(s.unlockAt) {
		e.advanceLocked(s)
	}

	view := GameView{
		Faction:      s.faction,
		Ledger:       s.ledger,
		GameOver:     s.gameOver,
		LockedAnswer: s.lockedAnswer,
		AttacksLeft:  s.attacksLeft,
		HelpLeft:     s.helpLeft,
	}
	if !s.unlockAt.IsZero() {
		view.UnlockAt = s.unlockAt.UnixMilli()
	}
	if s.faction != "" && s.currentID != "" {
		node, err := e.questions.Node(s.faction, s.currentID)
		if err != nil {
			return view, err
		}
		view.Node = node
	}
	return view, nil
}

// SelectFaction seeds the campaign at the faction's start node and pushes the
// selection to the server.
func (e *Engine) SelectFaction(s *PlayerSession, faction string) error {
	graph, err := e.questions.Graph(faction)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.faction = faction
	s.currentID = graph.Start
	s.gameOver = false
	s.lockedAnswer = ""
	s.unlockAt = time.Time{}
	s.pendingNext = ""
	e.bridge.mirrorLockLocked(s)
	token := s.token
	start := graph.Start
	s.mu.Unlock()

	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.remote.UpdateProgress(ctx, token, ProgressUpdate{Faction: faction, Current: start}); err != nil {
			log.Printf("push faction selection failed: %v", err)
		}
	}()
	return nil
}

// Reset restarts the campaign at the start node with a default ledger.
func (e *Engine) Reset(s *PlayerSession) error {
	s.mu.Lock()
	faction := s.faction
	s.mu.Unlock()
	if faction == "" {
		return &ContentError{Reason: "no faction selected"}
	}
	graph, err := e.questions.Graph(faction)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.currentID = graph.Start
	s.ledger = defaultResources()
	s.gameOver = false
	s.lockedAnswer = ""
	s.unlockAt = time.Time{}
	s.pendingNext = ""
	e.bridge.mirrorLockLocked(s)
	token := s.token
	ledger := s.ledger
	s.mu.Unlock()

	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.remote.UpdateProgress(ctx, token, ProgressUpdate{Faction: faction, Current: graph.Start}); err != nil {
			log.Printf("push campaign reset failed: %v", err)
		}
		if err := e.remote.UpdateLedger(ctx, token, ledger); err != nil {
			log.Printf("push reset ledger failed: %v", err)
		}
	}()
	return nil
}

// waitForPushes blocks until outstanding server syncs finish. Tests use it to
// assert on what reached the fake remote.
func (e *Engine) waitForPushes() {
	e.pushes.Wait()
}
