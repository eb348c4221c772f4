// Package ipc handles inter-process communication between the daemon and clients.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/austinkregel/local-media/arrangerd/internal/analysis"
	"github.com/austinkregel/local-media/arrangerd/internal/config"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdPair      CommandType = "pair"
	CmdPlay      CommandType = "play"
	CmdPause     CommandType = "pause"
	CmdResume    CommandType = "resume"
	CmdStop      CommandType = "stop"
	CmdVolume    CommandType = "volume"
	CmdStatus    CommandType = "status"
	CmdGetConfig CommandType = "getConfig"

	// Pairing approval by an already paired client
	CmdApprovePair CommandType = "approvePair"
	CmdDenyPair    CommandType = "denyPair"

	// Analysis results
	CmdGetAnalysis         CommandType = "getAnalysis"
	CmdSubscribeAnalysis   CommandType = "subscribeAnalysis"
	CmdUnsubscribeAnalysis CommandType = "unsubscribeAnalysis"
)

// Push message types
const (
	PushAnalysis   = "analysis"
	PushTrackEnded = "trackEnded"
	PushPairing    = "pairingRequest"
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd   CommandType     `json:"cmd"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PairRequest is the data for a pair command
type PairRequest struct {
	ClientName string `json:"clientName"`
}

// PairResponse is the response to a pair command
type PairResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
}

// PairDecisionRequest is the data for approvePair and denyPair
type PairDecisionRequest struct {
	RequestID string `json:"requestId"`
}

// PairingData is the payload of a pairingRequest push
type PairingData struct {
	RequestID  string `json:"requestId"`
	ClientName string `json:"clientName"`
}

// PlayRequest is the data for a play command
type PlayRequest struct {
	Path string `json:"path"`
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// StatusResponse is the response to a status command
type StatusResponse struct {
	State         string         `json:"state"`
	Path          string         `json:"path,omitempty"`
	Position      int64          `json:"position"` // milliseconds
	Duration      int64          `json:"duration"` // milliseconds
	Volume        float64        `json:"volume"`
	AnalysisState analysis.State `json:"analysisState"`
}

// AnalysisData is the payload of getAnalysis responses and analysis pushes.
// Snapshot is omitted when no analysis is available.
type AnalysisData struct {
	Ready    bool               `json:"ready"`
	State    analysis.State     `json:"state,omitempty"`
	Snapshot *analysis.Snapshot `json:"snapshot,omitempty"`
}

// TrackEndedData is the payload of a trackEnded push
type TrackEndedData struct {
	Path string `json:"path"`
}

// ConfigResponse is the response to a getConfig command
type ConfigResponse struct {
	ConfigPath string         `json:"configPath"`
	Config     *config.Config `json:"config"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(PushMessage{
		Type: msgType,
		Data: rawData,
	})
}
