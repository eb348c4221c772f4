package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/austinkregel/local-media/arrangerd/internal/audio"
	"github.com/austinkregel/local-media/arrangerd/internal/auth"
)

// handleRequest answers req. A nil response means the answer is sent later.
func (s *Server) handleRequest(c *client, req *Request) *Response {
	// Pair command doesn't require authentication
	if req.Cmd == CmdPair {
		return s.handlePair(c, req)
	}

	if err := s.authManager.Authorize(c.peer, req.Token); err != nil {
		if errors.Is(err, auth.ErrLockedOut) {
			return NewErrorResponse("locked out")
		}
		return NewErrorResponse("unauthorized")
	}

	s.mu.Lock()
	c.authenticated = true
	s.mu.Unlock()

	switch req.Cmd {
	case CmdPlay:
		return s.handlePlay(req)
	case CmdPause:
		return s.transport(s.player.Pause)
	case CmdResume:
		return s.transport(s.player.Resume)
	case CmdStop:
		return s.handleStop()
	case CmdVolume:
		return s.handleVolume(req)
	case CmdStatus:
		return s.handleStatus()
	case CmdGetConfig:
		return s.handleGetConfig()
	case CmdApprovePair:
		return s.handlePairDecision(req, s.authManager.Approve)
	case CmdDenyPair:
		return s.handlePairDecision(req, s.authManager.Deny)
	case CmdGetAnalysis:
		return s.handleGetAnalysis()
	case CmdSubscribeAnalysis:
		return s.setSubscribed(c, true)
	case CmdUnsubscribeAnalysis:
		return s.setSubscribed(c, false)
	default:
		return NewErrorResponse("unknown command")
	}
}

// handlePair starts a pairing request. Unless it is the first client, the
// request is announced to paired clients and answered once one of them
// decides, so the connection keeps reading meanwhile.
func (s *Server) handlePair(c *client, req *Request) *Response {
	var pairReq PairRequest
	if req.Data != nil {
		if err := json.Unmarshal(req.Data, &pairReq); err != nil {
			return NewErrorResponse("invalid pair request")
		}
	}

	pending, approved, err := s.authManager.BeginPairing(pairReq.ClientName)
	if err != nil {
		log.Printf("[AUTH] Pairing failed: %v", err)
		return NewErrorResponse(err.Error())
	}
	if approved {
		return s.finishPairing(c, pending.ID)
	}

	log.Printf("[AUTH] %d pairing request(s) awaiting approval", s.authManager.PendingPairings())
	s.broadcast(PushPairing, PairingData{RequestID: pending.ID, ClientName: pending.ClientName}, authenticated)

	go func() {
		if err := s.sendResponse(c, s.finishPairing(c, pending.ID)); err != nil {
			log.Printf("[IPC] Send error: %v", err)
		}
	}()
	return nil
}

// finishPairing waits for the decision on a pairing request. The wait ends
// early when the client disconnects or the server stops.
func (s *Server) finishPairing(c *client, requestID string) *Response {
	ctx, cancel := context.WithCancel(s.serverContext())
	defer cancel()
	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	token, clientID, err := s.authManager.WaitForPairing(ctx, requestID)
	if err != nil {
		log.Printf("[AUTH] Pairing %s not completed: %v", requestID, err)
		return NewErrorResponse(err.Error())
	}

	resp, err := NewSuccessResponse(PairResponse{Token: token, ClientID: clientID})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handlePairDecision(req *Request, decide func(requestID string) error) *Response {
	var decision PairDecisionRequest
	if err := json.Unmarshal(req.Data, &decision); err != nil || decision.RequestID == "" {
		return NewErrorResponse("invalid pairing decision")
	}
	if err := decide(decision.RequestID); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

// handlePlay starts the track and restarts analysis against it. Every play
// is a track change, so the engine starts from empty history.
func (s *Server) handlePlay(req *Request) *Response {
	var playReq PlayRequest
	if err := json.Unmarshal(req.Data, &playReq); err != nil {
		return NewErrorResponse("invalid play request")
	}
	if playReq.Path == "" {
		return NewErrorResponse("path is required")
	}

	s.transportMu.Lock()
	defer s.transportMu.Unlock()

	// Release the sampler before the player resets it
	s.engine.Stop()

	if err := s.player.Play(context.Background(), playReq.Path); err != nil {
		log.Printf("[PLAYER] Play failed: %v", err)
		return NewErrorResponse(err.Error())
	}

	if err := s.engine.Start(s.serverContext(), s.player); err != nil {
		log.Printf("[ANALYSIS] Failed to start analysis: %v", err)
	}

	return s.handleStatus()
}

func (s *Server) handleStop() *Response {
	s.transportMu.Lock()
	defer s.transportMu.Unlock()

	s.engine.Stop()
	if err := s.player.Stop(); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) transport(fn func() error) *Response {
	if err := fn(); err != nil {
		if errors.Is(err, audio.ErrNotPlaying) {
			return NewErrorResponse("nothing is playing")
		}
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) handleVolume(req *Request) *Response {
	var volReq VolumeRequest
	if err := json.Unmarshal(req.Data, &volReq); err != nil {
		return NewErrorResponse("invalid volume request")
	}
	if err := s.player.SetVolume(volReq.Level); err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.handleStatus()
}

func (s *Server) handleStatus() *Response {
	status := s.player.Status()
	resp, err := NewSuccessResponse(StatusResponse{
		State:         string(status.State),
		Path:          status.Path,
		Position:      status.Position,
		Duration:      status.Duration,
		Volume:        status.Volume,
		AnalysisState: s.engine.State(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleGetConfig() *Response {
	resp, err := NewSuccessResponse(ConfigResponse{
		ConfigPath: s.configMgr.GetPath(),
		Config:     s.configMgr.Get(),
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) handleGetAnalysis() *Response {
	snapshot, ready := s.engine.Latest()
	resp, err := NewSuccessResponse(AnalysisData{
		Ready:    ready,
		State:    s.engine.State(),
		Snapshot: snapshot,
	})
	if err != nil {
		return NewErrorResponse("internal error")
	}
	return resp
}

func (s *Server) setSubscribed(c *client, on bool) *Response {
	s.mu.Lock()
	c.subscribed = on
	count := 0
	for _, other := range s.clients {
		if other.subscribed {
			count++
		}
	}
	s.mu.Unlock()

	log.Printf("[IPC] Analysis subscribers: %d", count)
	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": on})
	return resp
}

func (s *Server) serverContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
