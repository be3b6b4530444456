package realtime

import (
	"encoding/json"

	"github.com/openai/openai-go/v3/packages/param"
	oairealtime "github.com/openai/openai-go/v3/realtime"
	"github.com/openai/openai-go/v3/responses"
)

// Client event types.
const (
	EventSessionUpdate          = "session.update"
	EventInputAudioAppend       = "input_audio_buffer.append"
	EventConversationItemCreate = "conversation.item.create"
	EventConversationItemTrunc  = "conversation.item.truncate"
	EventResponseCreate         = "response.create"
	EventResponseCancel         = "response.cancel"
)

// Server event types. The beta audio names are accepted as aliases.
const (
	EventSessionCreated            = "session.created"
	EventSessionUpdated            = "session.updated"
	EventResponseCreated           = "response.created"
	EventResponseAudioDelta        = "response.audio.delta"
	EventResponseOutputAudioDelta  = "response.output_audio.delta"
	EventResponseTranscriptDone    = "response.audio_transcript.done"
	EventResponseOutputTranscript  = "response.output_audio_transcript.done"
	EventInputTranscriptCompleted  = "conversation.item.input_audio_transcription.completed"
	EventSpeechStarted             = "input_audio_buffer.speech_started"
	EventSpeechStopped             = "input_audio_buffer.speech_stopped"
	EventFunctionCallArgumentsDone = "response.function_call_arguments.done"
	EventResponseDone              = "response.done"
	EventError                     = "error"
)

// AudioFormatPCMU is G.711 µ-law, what Twilio Media Streams carry (8 kHz).
const AudioFormatPCMU = "audio/pcmu"

// DefaultModel is used when a tenant does not pin a model.
const DefaultModel = oairealtime.RealtimeSessionCreateRequestModelGPTRealtime

// Tool is a function definition advertised to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

type SessionUpdate struct {
	Type    string                                        `json:"type"`
	Session oairealtime.RealtimeSessionCreateRequestParam `json:"session"`
}

// NewSessionUpdate configures a phone session: µ-law both ways, server VAD,
// caller transcription and tools. The bridge cancels interrupted responses
// itself, so the detector does not.
func NewSessionUpdate(instructions, voice string, tools []Tool) SessionUpdate {
	pcmu := oairealtime.RealtimeAudioFormatsUnionParam{
		OfAudioPCMU: &oairealtime.RealtimeAudioFormatsAudioPCMUParam{Type: AudioFormatPCMU},
	}
	s := oairealtime.RealtimeSessionCreateRequestParam{
		Type:             "realtime",
		OutputModalities: []string{"audio"},
		Instructions:     param.NewOpt(instructions),
		Audio: oairealtime.RealtimeAudioConfigParam{
			Input: oairealtime.RealtimeAudioConfigInputParam{
				Format:        pcmu,
				Transcription: oairealtime.AudioTranscriptionParam{Model: oairealtime.AudioTranscriptionModelWhisper1},
				TurnDetection: oairealtime.RealtimeAudioInputTurnDetectionUnionParam{
					OfServerVad: &oairealtime.RealtimeAudioInputTurnDetectionServerVadParam{
						Type:              "server_vad",
						CreateResponse:    param.NewOpt(true),
						InterruptResponse: param.NewOpt(false),
					},
				},
			},
			Output: oairealtime.RealtimeAudioConfigOutputParam{
				Format: pcmu,
				Voice:  oairealtime.RealtimeAudioConfigOutputVoice(voice),
			},
		},
	}
	if len(tools) > 0 {
		s.Tools = make(oairealtime.RealtimeToolsConfigParam, 0, len(tools))
		for _, t := range tools {
			fn := &oairealtime.RealtimeFunctionToolParam{
				Type:       oairealtime.RealtimeFunctionToolTypeFunction,
				Name:       param.NewOpt(t.Name),
				Parameters: t.Parameters,
			}
			if t.Description != "" {
				fn.Description = param.NewOpt(t.Description)
			}
			s.Tools = append(s.Tools, oairealtime.RealtimeToolsConfigUnionParam{OfFunction: fn})
		}
		s.ToolChoice = oairealtime.RealtimeToolChoiceConfigUnionParam{
			OfToolChoiceMode: param.NewOpt(responses.ToolChoiceOptionsAuto),
		}
	}
	return SessionUpdate{Type: EventSessionUpdate, Session: s}
}

// The client library has no client event types, so the remaining events are
// small envelopes.

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type ItemCreate struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

// NewGreetingItem asks the model to open the call with greeting.
func NewGreetingItem(greeting string) ItemCreate {
	return ItemCreate{
		Type: EventConversationItemCreate,
		Item: Item{
			Type: "message",
			Role: "user",
			Content: []ContentPart{{
				Type: "input_text",
				Text: "The caller just connected. Greet them with exactly: \"" + greeting + "\"",
			}},
		},
	}
}

func NewFunctionOutput(callID, output string) ItemCreate {
	return ItemCreate{
		Type: EventConversationItemCreate,
		Item: Item{Type: "function_call_output", CallID: callID, Output: output},
	}
}

type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

func NewTruncate(itemID string, audioEndMs int64) ItemTruncate {
	if audioEndMs < 0 {
		audioEndMs = 0
	}
	return ItemTruncate{Type: EventConversationItemTrunc, ItemID: itemID, AudioEndMs: audioEndMs}
}

// Bare is an event that carries only its type (response.create, response.cancel).
type Bare struct {
	Type string `json:"type"`
}

// ServerEvent is the union of the server event fields the bridge reads.
type ServerEvent struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`

	// Delta is base64 audio on audio delta events.
	Delta string `json:"delta,omitempty"`
	// Transcript is set on transcript done/completed events.
	Transcript string `json:"transcript,omitempty"`

	// Function call completion.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	AudioStartMs int64 `json:"audio_start_ms,omitempty"`

	// Response is set on response.created and response.done.
	Response *ResponseInfo `json:"response,omitempty"`

	Error *ErrorInfo `json:"error,omitempty"`
}

type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// Error codes the bridge reacts to.
const (
	ErrCodeActiveResponse  = "conversation_already_has_active_response"
	ErrCodeCancelNotActive = "response_cancel_not_active"
)

type ErrorInfo struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ResponseRef is the response id of a response.* event.
func (e ServerEvent) ResponseRef() string {
	if e.Response != nil && e.Response.ID != "" {
		return e.Response.ID
	}
	return e.ResponseID
}

// IsAudioDelta matches both the beta and GA audio delta names.
func (e ServerEvent) IsAudioDelta() bool {
	return e.Type == EventResponseAudioDelta || e.Type == EventResponseOutputAudioDelta
}

func (e ServerEvent) IsAssistantTranscript() bool {
	return e.Type == EventResponseTranscriptDone || e.Type == EventResponseOutputTranscript
}

// ParseServerEvent decodes one server frame. Unknown types decode fine and
// are left to the caller to ignore.
func ParseServerEvent(b []byte) (ServerEvent, error) {
	var e ServerEvent
	err := json.Unmarshal(b, &e)
	return e, err
}
