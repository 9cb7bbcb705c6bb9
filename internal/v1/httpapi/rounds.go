package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/ident"
	"github.com/waustin14/StoryFill/internal/v1/narration"
)

type submitPromptRequest struct {
	PlayerToken string `json:"player_token"`
	PlayerID    string `json:"player_id"`
	Value       string `json:"value"`
}

type playbackRequest struct {
	Action string `json:"action"`
}

// handleGetPrompts returns the prompts currently assigned to the
// requesting player. Only meaningful while the round is collecting input.
func (s *Server) handleGetPrompts(c *gin.Context) {
	const command = "get_prompts"
	code := ident.NormalizeCode(c.Param("code"))
	roundID := c.Param("round_id")
	playerID := c.Query("player_id")
	token := bearerToken(c, c.Query("player_token"))

	var resp gin.H
	err := s.view(code, func(room *game.Room) *apierr.Error {
		if err := requireRound(room, roundID); err != nil {
			return err
		}
		if err := s.requirePlayer(room, token, playerID); err != nil {
			return err
		}
		if room.State != game.StatePrompting {
			return apierr.StateConflict("Prompts are only available while the round is in progress.")
		}
		resp = gin.H{
			"round_id": room.RoundID,
			"prompts":  game.PromptViews(room.PlayerPrompts(playerID)),
		}
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

// handlePromptAction dispatches POST .../prompts/{prompt_id}:submit.
func (s *Server) handlePromptAction(c *gin.Context) {
	promptID, action := splitAction(c.Param("prompt"))
	if action != "submit" {
		s.respondError(c, "prompt_action", apierr.NotFound("Unknown prompt action."))
		return
	}
	s.submitPrompt(c, promptID)
}

func (s *Server) submitPrompt(c *gin.Context, promptID string) {
	const command = "submit_prompt"
	var req submitPromptRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.PlayerToken)

	code := ident.NormalizeCode(c.Param("code"))
	roundID := c.Param("round_id")

	// The limiter runs before the room lock so a hammering client never
	// holds up the rest of the room.
	if req.PlayerID != "" {
		if err := s.limiter.AllowSubmit(c.Request.Context(), code, req.PlayerID); err != nil {
			s.respondError(c, command, err)
			return
		}
	}

	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := requireRound(room, roundID); err != nil {
			return err
		}
		if err := s.requirePlayer(room, token, req.PlayerID); err != nil {
			return err
		}
		if err := room.SubmitPrompt(req.PlayerID, promptID, req.Value, s.moderate, now); err != nil {
			return err
		}
		resp = snapshotBody(room)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) handleGetStory(c *gin.Context) {
	const command = "get_story"
	code := ident.NormalizeCode(c.Param("code"))
	roundID := c.Param("round_id")

	var resp gin.H
	err := s.view(code, func(room *game.Room) *apierr.Error {
		if err := requireRound(room, roundID); err != nil {
			return err
		}
		if room.State != game.StateRevealed {
			return apierr.StateConflict("The story has not been revealed yet.")
		}
		resp = gin.H{
			"round_id":       room.RoundID,
			"template_id":    room.TemplateID,
			"rendered_story": room.RevealedStory,
		}
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) handleGetProgress(c *gin.Context) {
	const command = "get_progress"
	code := ident.NormalizeCode(c.Param("code"))
	roundID := c.Param("round_id")

	var resp gin.H
	err := s.view(code, func(room *game.Room) *apierr.Error {
		if err := requireRound(room, roundID); err != nil {
			return err
		}
		resp = gin.H{
			"round_id":      room.RoundID,
			"room_state":    room.State,
			"state_version": room.StateVersion,
			"progress":      room.Progress(),
		}
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

// handleRoundAction dispatches POST /rooms/{code}/rounds/{round_id}:tts
// and :share.
func (s *Server) handleRoundAction(c *gin.Context) {
	code := ident.NormalizeCode(c.Param("code"))
	roundID, action := splitAction(c.Param("round_id"))
	switch action {
	case "tts":
		s.requestNarration(c, code, roundID)
	case "share":
		s.createShare(c, code, roundID)
	default:
		s.respondError(c, "round_action", apierr.NotFound("Unknown round action."))
	}
}

func (s *Server) requestNarration(c *gin.Context, code, roundID string) {
	const command = "request_narration"
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	if err := s.limiter.AllowNarration(c.Request.Context(), code); err != nil {
		s.respondError(c, command, err)
		return
	}

	now := s.now()
	var job narration.Job
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		if err := requireRound(room, roundID); err != nil {
			return err
		}
		if room.State != game.StateRevealed {
			return apierr.StateConflict("Narration is available after the reveal.")
		}
		job = s.narration.Request(c.Request.Context(), room.ID, room.RoundID, room.RevealedStory)
		room.SetNarrationJob(job.ID, now)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, job)
}

func (s *Server) handleGetNarration(c *gin.Context) {
	const command = "get_narration"
	code := ident.NormalizeCode(c.Param("code"))
	roundID := c.Param("round_id")

	var job narration.Job
	err := s.view(code, func(room *game.Room) *apierr.Error {
		if err := requireRound(room, roundID); err != nil {
			return err
		}
		job = s.narration.GetByRound(room.ID, room.RoundID)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, job)
}

// handleJobAction dispatches POST /tts/jobs/{job_id}:playback.
func (s *Server) handleJobAction(c *gin.Context) {
	jobID, action := splitAction(c.Param("job"))
	if action != "playback" {
		s.respondError(c, "job_action", apierr.NotFound("Unknown job action."))
		return
	}

	const command = "playback"
	var req playbackRequest
	_ = c.ShouldBindJSON(&req)
	job, err := s.narration.UpdatePlayback(jobID, req.Action)
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, job)
}

// handleJobAudio streams the synthesized audio for a finished job.
func (s *Server) handleJobAudio(c *gin.Context) {
	const command = "get_audio"
	audio, ok := s.narration.Audio(c.Param("job_id"))
	if !ok {
		s.respondError(c, command, apierr.NotFound("Audio not available for this job."))
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

// createShare mints (or returns) the share artifact for a revealed round.
func (s *Server) createShare(c *gin.Context, code, roundID string) {
	const command = "create_share"
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		if err := requireRound(room, roundID); err != nil {
			return err
		}
		if room.State != game.StateRevealed {
			return apierr.StateConflict("Share a story after the reveal.")
		}
		if room.Share != nil && now.Before(room.Share.ExpiresAt) {
			// Repeat calls for the same round return the original token.
			resp = s.shareBody(room.Share.Token, room.Share.ExpiresAt)
			return nil
		}
		artifact := s.shares.Create(room.ID, room.Code, room.RoundID, room.RevealedStory, now)
		room.SetShare(artifact.Token, artifact.ExpiresAt, now)
		s.history.RecordShare(c.Request.Context(), artifact.Token, room.ID, room.RoundID,
			artifact.CreatedAt, artifact.ExpiresAt)
		resp = s.shareBody(artifact.Token, artifact.ExpiresAt)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) handleGetShare(c *gin.Context) {
	const command = "get_share"
	artifact, err := s.shares.Get(c.Param("token"), s.now())
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, artifact)
}

func (s *Server) handleListTemplates(c *gin.Context) {
	s.respondOK(c, "list_templates", gin.H{"templates": game.ListTemplates()})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	const command = "get_template"
	tpl, ok := game.GetTemplate(c.Param("id"))
	if !ok {
		s.respondError(c, command, apierr.NotFound("Template not found."))
		return
	}
	s.respondOK(c, command, tpl)
}
