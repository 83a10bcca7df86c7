package main

import (
	"context"
	"log"
	"strconv"
	"time"
)

// Field names mirrored to the lock store, one row per field so each write or
// removal is atomic on its own.
const (
	fieldUnlockAt     = "unlockAtEpochMs"
	fieldLockedAnswer = "lockedAnswer"
	fieldPendingNext  = "pendingNextId"
)

// Bridge reconciles a session against the two sources of truth on startup:
// the remote service for faction, node pointer and ledger; the local lock
// store for the cooldown fields the server does not track.
type Bridge struct {
	local     *LockStore
	remote    *RemoteClient
	questions *QuestionStore
	clock     Clock
}

func newBridge(local *LockStore, remote *RemoteClient, questions *QuestionStore, clock Clock) *Bridge {
	if clock == nil {
		clock = time.Now
	}
	return &Bridge{local: local, remote: remote, questions: questions, clock: clock}
}

// InitSession builds the in-memory session for an authenticated identity.
// Remote fetch failures degrade to whatever local cache offers; they never
// abort the login.
func (b *Bridge) InitSession(ctx context.Context, token string, profile Profile) *PlayerSession {
	s := &PlayerSession{
		identity: profile.Identity(),
		token:    token,
		username: profile.Username,
		ledger:   defaultResources(),
	}

	// Cached cooldown state first, before any mirror writes can run.
	fields, err := b.local.Fields(ctx, s.identity)
	if err != nil {
		log.Printf("read cached lock state for %s failed: %v", s.identity, err)
		fields = map[string]string{}
	}
	if raw, ok := fields[fieldUnlockAt]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.unlockAt = time.UnixMilli(ms)
		}
	}
	s.lockedAnswer = fields[fieldLockedAnswer]
	s.pendingNext = fields[fieldPendingNext]

	// Server truth for everything it tracks.
	s.faction = profile.Faction
	if profile.Power != nil {
		s.ledger = *profile.Power
	}
	s.attacksLeft = profile.AttacksLeft
	s.helpLeft = profile.HelpLeft

	pointer := profile.CurrentQuestion
	if id, err := b.remote.CurrentQuestion(ctx, token); err != nil {
		log.Printf("fetch current question for %s failed: %v", s.identity, err)
	} else if id != "" {
		pointer = id
	}

	if s.faction != "" {
		if pointer == "" {
			if graph, err := b.questions.Graph(s.faction); err == nil {
				pointer = graph.Start
			} else {
				log.Printf("seed start node for %s failed: %v", s.identity, err)
			}
		}
		if pointer == endSentinel {
			s.gameOver = true
		} else {
			s.currentID = pointer
		}
	}

	s.initialized = true
	return s
}

// mirrorLockLocked writes the three cooldown fields to durable storage, or
// removes them when cleared. Callers hold s.mu. Nothing is written until
// InitSession finished, so an in-flight load cannot be clobbered.
func (b *Bridge) mirrorLockLocked(s *PlayerSession) {
	if !s.initialized {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	unlock := ""
	if !s.unlockAt.IsZero() {
		unlock = strconv.FormatInt(s.unlockAt.UnixMilli(), 10)
	}
	b.mirrorField(ctx, s.identity, fieldUnlockAt, unlock)
	b.mirrorField(ctx, s.identity, fieldLockedAnswer, s.lockedAnswer)
	b.mirrorField(ctx, s.identity, fieldPendingNext, s.pendingNext)
}

func (b *Bridge) mirrorField(ctx context.Context, identity, field, value string) {
	var err error
	if value == "" {
		err = b.local.Delete(ctx, identity, field)
	} else {
		err = b.local.Put(ctx, identity, field, value)
	}
	if err != nil {
		log.Printf("mirror %s for %s failed: %v", field, identity, err)
	}
}
