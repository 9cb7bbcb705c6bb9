// Package narration fronts the external text-to-speech pipeline. The room
// lock is never held across provider calls; handlers grab a job handle and
// poll it.
package narration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/ident"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

// Status is a narration job state. The lattice is
// idle -> requesting -> queued -> generating -> {ready, from_cache, blocked, error}.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRequesting Status = "requesting"
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFromCache  Status = "from_cache"
	StatusBlocked    Status = "blocked"
	StatusError      Status = "error"
)

// Playback is the advisory playback state clients report.
type Playback string

const (
	PlaybackIdle     Playback = "idle"
	PlaybackPlaying  Playback = "playing"
	PlaybackPaused   Playback = "paused"
	PlaybackStopped  Playback = "stopped"
	PlaybackComplete Playback = "complete"
)

// playbackActions maps client actions onto playback states.
var playbackActions = map[string]Playback{
	"play":     PlaybackPlaying,
	"resume":   PlaybackPlaying,
	"pause":    PlaybackPaused,
	"stop":     PlaybackStopped,
	"complete": PlaybackComplete,
}

// ErrDeclined is returned by a provider that refuses the content. The job
// lands in blocked, a terminal state the client cannot retry past without
// replaying the round.
var ErrDeclined = errors.New("provider declined the content")

// Provider synthesizes speech for a story.
type Provider interface {
	Synthesize(ctx context.Context, story, model, voice string) (audio []byte, err error)
}

// Job is the public view of a narration job.
type Job struct {
	ID        string   `json:"job_id"`
	RoomID    string   `json:"room_id"`
	RoundID   string   `json:"round_id"`
	Status    Status   `json:"status"`
	AudioURL  string   `json:"audio_url,omitempty"`
	FromCache bool     `json:"from_cache"`
	Playback  Playback `json:"playback"`
	ErrorCode string   `json:"error_code,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

type job struct {
	Job
	fingerprint string
	audio       []byte
}

type cachedAudio struct {
	audio []byte
}

// Service tracks jobs and the fingerprint cache.
type Service struct {
	// Moderate, when set, screens stories before they reach the provider.
	// Set once at wiring time, before any Request call.
	Moderate func(story string) (reason string, blocked bool)

	mu          sync.Mutex
	provider    Provider
	model       string
	voice       string
	jobsByID    map[string]*job
	jobsByRound map[string]*job
	cache       map[string]*cachedAudio
}

func NewService(provider Provider, model, voice string) *Service {
	return &Service{
		provider:    provider,
		model:       model,
		voice:       voice,
		jobsByID:    make(map[string]*job),
		jobsByRound: make(map[string]*job),
		cache:       make(map[string]*cachedAudio),
	}
}

func roundKey(roomID, roundID string) string {
	return roomID + ":" + roundID
}

// Fingerprint identifies a story and voice configuration for the replay
// cache. The trailing version tag invalidates old entries when the audio
// pipeline changes.
func Fingerprint(story, model, voice string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|v2", story, model, voice)))
	return hex.EncodeToString(sum[:])
}

// Request starts narration for a round, or returns the existing handle.
// Identical stories resolve from the cache without touching the provider.
func (s *Service) Request(ctx context.Context, roomID, roundID, story string) Job {
	fp := Fingerprint(story, s.model, s.voice)

	s.mu.Lock()
	if existing, ok := s.jobsByRound[roundKey(roomID, roundID)]; ok {
		out := existing.Job
		s.mu.Unlock()
		return out
	}

	j := &job{
		Job: Job{
			ID:       ident.NewID("tts"),
			RoomID:   roomID,
			RoundID:  roundID,
			Status:   StatusRequesting,
			Playback: PlaybackIdle,
		},
		fingerprint: fp,
	}
	s.jobsByID[j.ID] = j
	s.jobsByRound[roundKey(roomID, roundID)] = j

	// A story that trips the filter never reaches the provider.
	if s.Moderate != nil {
		if _, blocked := s.Moderate(story); blocked {
			j.Status = StatusBlocked
			j.ErrorCode = "safety_blocked"
			j.Detail = "This story can't be narrated."
			out := j.Job
			s.mu.Unlock()
			metrics.NarrationJobs.WithLabelValues(string(StatusBlocked)).Inc()
			return out
		}
	}

	if hit, ok := s.cache[fp]; ok {
		j.audio = hit.audio
		j.Status = StatusFromCache
		j.FromCache = true
		j.AudioURL = audioURL(j.ID)
		out := j.Job
		s.mu.Unlock()
		metrics.NarrationJobs.WithLabelValues(string(StatusFromCache)).Inc()
		return out
	}
	out := j.Job
	s.mu.Unlock()

	go s.generate(context.WithoutCancel(ctx), j.ID, story)
	return out
}

// generate runs the provider call off the request path and resolves the
// job to a terminal state.
func (s *Service) generate(ctx context.Context, jobID, story string) {
	s.setStatus(jobID, StatusQueued)
	s.setStatus(jobID, StatusGenerating)

	audio, err := s.provider.Synthesize(ctx, story, s.model, s.voice)

	s.mu.Lock()
	j, ok := s.jobsByID[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	switch {
	case errors.Is(err, ErrDeclined):
		j.Status = StatusBlocked
		j.ErrorCode = "safety_blocked"
		j.Detail = "The narrator declined this story."
	case err != nil:
		j.Status = StatusError
		j.ErrorCode = "provider_error"
		j.Detail = "Narration failed. Please try again."
		logging.Error(ctx, "narration provider failed",
			zap.String("job_id", jobID), zap.Error(err))
	default:
		j.audio = audio
		j.AudioURL = audioURL(j.ID)
		j.Status = StatusReady
		s.cache[j.fingerprint] = &cachedAudio{audio: audio}
	}
	status := j.Status
	s.mu.Unlock()
	metrics.NarrationJobs.WithLabelValues(string(status)).Inc()
}

func (s *Service) setStatus(jobID string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobsByID[jobID]; ok {
		j.Status = status
	}
}

// GetByRound returns the round's job handle, or an idle placeholder when
// nothing has been requested yet.
func (s *Service) GetByRound(roomID, roundID string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobsByRound[roundKey(roomID, roundID)]; ok {
		return j.Job
	}
	return Job{RoomID: roomID, RoundID: roundID, Status: StatusIdle, Playback: PlaybackIdle}
}

// Get returns a job by id.
func (s *Service) Get(jobID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobsByID[jobID]; ok {
		return j.Job, true
	}
	return Job{}, false
}

// UpdatePlayback applies an advisory playback action.
func (s *Service) UpdatePlayback(jobID, action string) (Job, *apierr.Error) {
	next, ok := playbackActions[action]
	if !ok {
		return Job{}, apierr.Validation(fmt.Sprintf("Unknown playback action %q.", action))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, exists := s.jobsByID[jobID]
	if !exists {
		return Job{}, apierr.NotFound("Narration job not found.")
	}
	j.Playback = next
	return j.Job, nil
}

// Audio returns the synthesized bytes for serving.
func (s *Service) Audio(jobID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobsByID[jobID]
	if !ok || len(j.audio) == 0 {
		return nil, false
	}
	return j.audio, true
}

// DropRound forgets a round's job, used when a replay rotates the round.
// The fingerprint cache is kept so identical stories still hit it.
func (s *Service) DropRound(roomID, roundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roundKey(roomID, roundID)
	if j, ok := s.jobsByRound[key]; ok {
		delete(s.jobsByRound, key)
		delete(s.jobsByID, j.ID)
	}
}

func audioURL(jobID string) string {
	return fmt.Sprintf("/v1/tts/jobs/%s/audio", jobID)
}
